package store

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"mdwindow/internal/domain"
)

// InitFolders creates <base>/<product>/<dataset> for every product type and
// dataset. Failures are logged per folder and do not stop provisioning; the
// number of folders created is returned.
func InitFolders(base string, log *slog.Logger) int {
	created := 0
	for _, product := range domain.ProductTypes {
		for _, ds := range domain.Datasets {
			dir := DatasetDir(base, product, ds)
			if _, err := os.Stat(dir); err == nil {
				log.Debug("folder already exists", "dir", dir)
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				log.Error("checking folder", "dir", dir, "error", err)
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Error("creating folder", "dir", dir, "error", err)
				continue
			}
			created++
			log.Info("created folder", "dir", dir, "product", product.Label())
		}
	}
	return created
}
