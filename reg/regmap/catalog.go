package regmap

import (
	"embed"
	"path"
	"strings"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"hwreg-go/errcode"
)

//go:embed maps/*.yaml
var builtin embed.FS

var (
	catalogOnce sync.Once
	catalog     map[string]*Device
	catalogErr  error
)

// Catalog returns the built-in maps keyed by file name without extension,
// e.g. "samd21_usb".
func Catalog() (map[string]*Device, error) {
	catalogOnce.Do(func() {
		entries, err := builtin.ReadDir("maps")
		if err != nil {
			catalogErr = err
			return
		}
		catalog = map[string]*Device{}
		for _, e := range entries {
			raw, err := builtin.ReadFile(path.Join("maps", e.Name()))
			if err != nil {
				catalogErr = err
				return
			}
			d, err := Parse(raw)
			if err != nil {
				catalogErr = errcode.Wrap(errcode.InvalidMap, "regmap.Catalog", err)
				return
			}
			catalog[strings.TrimSuffix(e.Name(), ".yaml")] = d
		}
	})
	return catalog, catalogErr
}

// CatalogNames lists the built-in maps.
func CatalogNames() []string {
	c, _ := Catalog()
	names := maps.Keys(c)
	slices.Sort(names)
	return names
}

// Builtin returns one built-in map.
func Builtin(name string) (*Device, error) {
	c, err := Catalog()
	if err != nil {
		return nil, err
	}
	d, ok := c[name]
	if !ok {
		return nil, errcode.New(errcode.InvalidParams, "regmap.Builtin", "no built-in map "+name)
	}
	return d, nil
}
