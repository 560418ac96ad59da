package nodes

import "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"

// Register adds every stock kind to r.
func Register(r *registry.Store) error {
    for _, k := range []struct {
        name, summary string
        f             registry.Factory
    }{
        {"counter-source", "emits an increasing counter kept in the state store", newCounter},
        {"fizz", "forwards Int and emits Fizz on multiples of divisor", newFizz},
        {"buzz", "joins Int and Str, appends the buzzword on multiples of divisor", newBuzz},
        {"forward", "relays whichever input fires to out", newForward},
        {"labeler", "latches Label, emits label+trigger on Out", newLabeler},
        {"greetings-maker", "turns a name into a localized greeting", newGreetings},
        {"period-miss-detector", "reports inputs and emits a default when a period is missed", newPeriodMiss},
        {"hamburg", "latches Tigris/Ganges/Nile, relays Danube to Parana", newHamburg},
        {"geneva", "latches Danube/Tagus/Congo, joins Parana with Danube on Arkansas", newGeneva},
        {"cordoba", "emits a random float on Amazon every period", newCordoba},
        {"mandalay", "latches six inputs, publishes Brazos/Tagus/Missouri after a quiet period", newMandalay},
        {"generic-sink", "prints or writes every Data message", sinkFactory("Data", "", genericLine)},
        {"file-writer", "writes every in message to a file, one per line", sinkFactory("in", "/tmp/period-log.txt", plainLine)},
    } {
        if err := r.Register(k.name, k.summary, k.f); err != nil { return err }
    }
    return nil
}
