package channel

import (
	"fmt"
	"path/filepath"
)

const linkExt = ".chan"

// Link names the channel carrying items from rank Src to rank Dst.
type Link struct {
	Src int
	Dst int
}

func (l Link) String() string {
	return fmt.Sprintf("%d->%d", l.Src, l.Dst)
}

func (l Link) Filename() string {
	return fmt.Sprintf("%04d-%04d%s", l.Src, l.Dst, linkExt)
}

// Path returns the channel file of the link inside dir.
func (l Link) Path(dir string) string {
	return filepath.Join(dir, l.Filename())
}

// ParseLink is the inverse of Filename. Directories in name are ignored.
func ParseLink(name string) (l Link, err error) {
	base := filepath.Base(name)

	if _, err = fmt.Sscanf(base, "%d-%d.chan", &l.Src, &l.Dst); err != nil {
		return l, fmt.Errorf("not a link file: %s", base)
	}

	return
}
