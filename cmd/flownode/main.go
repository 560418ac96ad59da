package main

import (
    "log"
    "os"

    "github.com/alecthomas/kong"
    "github.com/joho/godotenv"
)

var CLI struct {
    Run   RunCmd   `cmd:"" default:"withargs" help:"Run the configured dataflow until interrupted."`
    Kinds KindsCmd `cmd:"" help:"List the node kinds this host can run."`
}

func main() {
    if _, err := os.Stat(".env"); err == nil {
        if err := godotenv.Load(); err != nil {
            log.Fatalf("loading .env: %v", err)
        }
    }

    ctx := kong.Parse(&CLI,
        kong.Name("flownode"),
        kong.Description("Runs a dataflow of reactive multi-port nodes in one process."),
        kong.UsageOnError(),
    )
    ctx.FatalIfErrorf(ctx.Run())
}
