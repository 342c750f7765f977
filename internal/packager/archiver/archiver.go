// Package archiver packs a staged working directory as it is.
package archiver

import (
	"fmt"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

// archiver implements packager.Builder
type archiver struct{}

func Register() {
	packager.Register(&archiver{})
}

func (a *archiver) Kind() config.Kind {
	return config.KindArchive
}

func (a *archiver) FillProperties(c *packager.Context) error {
	return nil
}

func (a *archiver) ResolveOutputName(c *packager.Context) (string, error) {
	return c.OutputName(packager.DefaultOutputName)
}

// Build writes the SWID tag, if any, into the staged tree and packs it
// once per declared format.
func (a *archiver) Build(c *packager.Context) ([]packager.Output, error) {
	log := logger.Logger()
	name, _ := c.Props[packager.PropOutputName].(string)
	if err := c.WriteSwid(c.WorkDir); err != nil {
		return nil, fmt.Errorf("writing swid tag: %w", err)
	}
	outputs, err := c.Pack(c.WorkDir, name)
	if err != nil {
		return outputs, err
	}
	if len(outputs) == 0 {
		log.Warnf("Every format of %s is skipped, nothing was packed", c.Name())
	}
	return outputs, nil
}
