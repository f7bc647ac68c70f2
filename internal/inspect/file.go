package inspect

import (
	"fmt"
	"os"

	"github.com/rcook/rust-tool-action/internal/release"
)

func (i *Inspector) file(path string, info os.FileInfo, r *Result) error {
	r.add("size", fmt.Sprintf("%d bytes", info.Size()))
	r.add("mode", info.Mode().Perm().String())
	r.addTime("modified", info.ModTime())
	sum, err := release.FileSHA256(path)
	if err != nil {
		return err
	}
	r.add("sha256", sum)
	return nil
}
