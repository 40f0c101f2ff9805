package source

import (
	"os"
	"path/filepath"

	"github.com/zjrosen/propane/internal/log"
)

// UserManifestDir returns ~/.config/propane/manifests, next to the user
// config file, or "" when the home directory cannot be determined.
func UserManifestDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "propane", "manifests")
}

// UserDir returns a source over the user's manifest directory. A missing
// directory is not an error: the user simply has no manifests, so the source
// is an empty Static.
func UserDir(dir string, opts ...FSOption) Source {
	if dir == "" {
		return NewStatic("user")
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Debug(log.CatSource, "no user manifests", "dir", dir)
		return NewStatic("user")
	}
	return NewFS("user:"+dir, os.DirFS(dir), opts...)
}
