package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"

	dockbuild "github.com/mini-docker/mini-docker/build"
	"github.com/mini-docker/mini-docker/image"
)

var buildCommand = cli.Command{
	Name:      "build",
	Usage:     "build an image from an Imagefile",
	ArgsUsage: "<context dir>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "tag, t", Usage: "name:tag to register the result under"},
		cli.StringFlag{Name: "file, f", Value: "Imagefile"},
		cli.BoolFlag{Name: "no-cache", Usage: "accepted for compatibility; builds never cache"},
	},
	Action: func(c *cli.Context) error {
		if c.String("tag") == "" {
			return cli.NewExitError("build requires -t name:tag", 2)
		}
		buildContext := "."
		if c.NArg() == 1 {
			buildContext = c.Args().First()
		}
		f, err := os.Open(filepath.Join(buildContext, c.String("file")))
		if err != nil {
			return err
		}
		defer f.Close()

		instructions, err := dockbuild.Parse(f)
		if err != nil {
			return err
		}

		mgr := manager(c)
		outputDir := filepath.Join(mgr.Images.Dir, sanitizeForDir(c.String("tag")))
		res, err := dockbuild.Execute(instructions, buildContext, outputDir)
		if err != nil {
			return err
		}
		return mgr.Images.Register(&image.Image{
			Tag: c.String("tag"), RootfsPath: res.RootfsPath,
			DefaultCmd: res.Cmd, DefaultEnv: res.Env,
		})
	},
}

var imagesCommand = cli.Command{
	Name:  "images",
	Usage: "list built images",
	Action: func(c *cli.Context) error {
		imgs, err := manager(c).Images.List()
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, imgs)
	},
}

var rmiCommand = cli.Command{
	Name:      "rmi",
	Usage:     "remove an image",
	ArgsUsage: "<name:tag>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("rmi requires a name:tag", 2)
		}
		return manager(c).Images.Remove(c.Args().First())
	},
}

func sanitizeForDir(tag string) string {
	return filepath.Clean(strings.ReplaceAll(tag, ":", "_"))
}
