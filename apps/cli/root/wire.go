package root

import (
	"github.com/quillbooks/quillbooks-core/apps/cli/cmd/auth"
	"github.com/quillbooks/quillbooks-core/apps/cli/cmd/bootstrap"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
}
