package project

import (
	"github.com/piwi3910/SheetNest/internal/model"
)

// SaveSettings writes nesting settings as JSON, or YAML for .yaml/.yml paths.
func SaveSettings(path string, settings model.Settings) error {
	return writeFile(path, settings)
}

// LoadSettings reads nesting settings. A missing file yields DefaultSettings.
// Fields absent from the file keep their default values.
func LoadSettings(path string) (model.Settings, error) {
	settings := model.DefaultSettings()
	if _, err := readFile(path, &settings); err != nil {
		return model.Settings{}, err
	}
	if settings.StockMaterials == nil {
		settings.StockMaterials = map[string]model.StockMaterial{}
	}
	return settings, nil
}
