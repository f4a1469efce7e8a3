package demo

import (
	"github.com/polisai/polis-intercept/pkg/container"
	"github.com/polisai/polis-intercept/pkg/domain"
)

// Key is the build key of the demo calculator.
var Key = domain.KeyFor[Calculator]("")

// Register makes Calculator buildable and interceptable by c. Both
// constructors are registered; the seeded one is selected with seed 0 unless
// configuration pins another value.
func Register(c *container.Container) error {
	def, err := Definition()
	if err != nil {
		return err
	}
	if err := c.RegisterProxy(def); err != nil {
		return err
	}
	return c.Register(Key,
		container.Constructor(NewCalculator),
		container.Constructor(NewSeededCalculator),
		container.Args(0),
	)
}
