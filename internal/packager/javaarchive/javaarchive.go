// Package javaarchive builds a Java distribution: launchers under bin/,
// the main jar and its dependencies under lib/.
package javaarchive

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

const LibDirectory = "lib"

//go:embed templates
var templates embed.FS

// javaArchive implements packager.Builder
type javaArchive struct{}

func Register() {
	packager.Register(&javaArchive{})
}

func (j *javaArchive) Kind() config.Kind {
	return config.KindJavaArchive
}

func (j *javaArchive) DefaultTemplates() fs.FS {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// FillProperties publishes the launcher name and Java settings.
func (j *javaArchive) FillProperties(c *packager.Context) error {
	java := c.Profile.Java
	if err := c.SetExecutableProps(java.Executable); err != nil {
		return err
	}

	mainJar, err := c.MainJarName(java.MainJar)
	if err != nil {
		return err
	}
	c.SetJavaProps(mainJar, java.Java.MainClass, java.Java.MainModule, java.Java.JvmOptions)
	return nil
}

func (j *javaArchive) ResolveOutputName(c *packager.Context) (string, error) {
	return c.OutputName(packager.DefaultOutputName)
}

// RemapTemplate renames the generic launchers after the executable.
func (j *javaArchive) RemapTemplate(c *packager.Context) stage.RemapFunc {
	return c.LauncherRemap(c.Target)
}

// Stage copies templates, artifacts and file sets into the working
// directory, then the jars into lib/.
func (j *javaArchive) Stage(c *packager.Context) error {
	log := logger.Logger()
	java := c.Profile.Java
	inputs, err := c.ResolveJava(java.MainJar, java.Jars)
	if err != nil {
		return err
	}
	templates, err := c.CopyTemplates(c.WorkDir)
	if err != nil {
		return err
	}
	files, err := c.CopyInputs(c.WorkDir)
	if err != nil {
		return err
	}
	jars, err := packager.CopyJars(filepath.Join(c.WorkDir, LibDirectory), inputs.All())
	if err != nil {
		return err
	}
	log.Debugf("Staged %s: %d templates, %d files, %d jars", c.Name(), len(templates), len(files), len(jars))
	return nil
}

func (j *javaArchive) Build(c *packager.Context) ([]packager.Output, error) {
	name, _ := c.Props[packager.PropOutputName].(string)
	if err := c.WriteSwid(c.WorkDir); err != nil {
		return nil, fmt.Errorf("writing swid tag: %w", err)
	}
	return c.Pack(c.WorkDir, name)
}
