// Command mini-docker is the entrypoint for both the CLI proper and the
// re-exec'd child/placeholder processes launcher.Spawn and
// launcher.SpawnPlaceholder fork against /proc/self/exe (see
// launcher/doc.go's protocol note).
package main

import (
	"os"

	"github.com/mini-docker/mini-docker/cmd"
	"github.com/mini-docker/mini-docker/launcher"
)

func main() {
	args := os.Args[1:]
	switch {
	case launcher.IsInitArg(args):
		launcher.Init()
	case launcher.IsNsexecArg(args):
		launcher.NsexecChild()
	case launcher.IsPodInitArg(args):
		launcher.PodInit()
	default:
		cmd.Main()
	}
}
