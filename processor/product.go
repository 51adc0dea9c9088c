package processor

import (
	"fmt"
	"os"

	"github.com/airbusgeo/goes-ingester/interface/raster"
	"gopkg.in/yaml.v3"
)

// ProductTransform is a pixel transform applied to a product before warping
type ProductTransform string

const (
	TransformNone           ProductTransform = ""
	TransformFireConfidence ProductTransform = "fire_confidence"
)

// Default collections
const (
	CloudCollection = "ABI-L2-ACHAC"
	FireCollection  = "ABI-L2-FDCC"
)

// Product is a derived product synchronized with the cloud index
type Product struct {
	Name       string           `yaml:"name" json:"name"`             // Output subdirectory
	Collection string           `yaml:"collection" json:"collection"` // Product code in the archive
	Variable   string           `yaml:"variable" json:"variable"`     // Variable of the granule
	Transform  ProductTransform `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// Validate returns an error if the product is not complete
func (p Product) Validate() error {
	if p.Name == "" || p.Collection == "" || p.Variable == "" {
		return fmt.Errorf("product %+v: name, collection and variable are mandatory", p)
	}
	switch p.Transform {
	case TransformNone, TransformFireConfidence:
	default:
		return fmt.Errorf("product %s: unknown transform %q", p.Name, p.Transform)
	}
	return nil
}

// DefaultProducts returns the products of a standard acquisition
func DefaultProducts() []Product {
	return []Product{
		{Name: "wld_map", Collection: FireCollection, Variable: "Mask", Transform: TransformFireConfidence},
		{Name: "cloud", Collection: CloudCollection, Variable: "HT"},
		{Name: "mask", Collection: FireCollection, Variable: "Mask"},
		{Name: "area", Collection: FireCollection, Variable: "Area"},
		{Name: "power", Collection: FireCollection, Variable: "Power"},
		{Name: "temp", Collection: FireCollection, Variable: "Temp"},
	}
}

// LoadProducts loads a list of products from a yaml file:
//   products:
//     - name: mask
//       collection: ABI-L2-FDCC
//       variable: Mask
func LoadProducts(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadProducts: %w", err)
	}
	var doc struct {
		Products []Product `yaml:"products"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("LoadProducts[%s]: %w", path, err)
	}
	if len(doc.Products) == 0 {
		return nil, fmt.Errorf("LoadProducts[%s]: no product", path)
	}
	names := map[string]bool{}
	for _, p := range doc.Products {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("LoadProducts[%s]: %w", path, err)
		}
		if names[p.Name] {
			return nil, fmt.Errorf("LoadProducts[%s]: duplicate product %s", path, p.Name)
		}
		names[p.Name] = true
	}
	return doc.Products, nil
}

// fireConfidence maps the fire-detection mask codes to a confidence.
// Codes 3x are the temporally filtered versions of codes 1x.
var fireConfidence = map[int]float64{
	10: 1.0, 30: 1.0, // processed fire
	11: 0.9, 31: 0.9, // saturated fire
	12: 0.8, 32: 0.8, // cloud contaminated fire
	13: 0.5, 33: 0.5, // high probability fire
	14: 0.3, 34: 0.3, // medium probability fire
	15: 0.1, 35: 0.1, // low probability fire
}

// FireConfidence returns the confidence of a fire-detection mask code (0 if it is not a fire)
func FireConfidence(code float64) float64 {
	if code != float64(int(code)) {
		return 0
	}
	return fireConfidence[int(code)]
}

// Apply returns the transformed band (the band itself for TransformNone)
func (t ProductTransform) Apply(band *raster.Band) (*raster.Band, error) {
	switch t {
	case TransformNone:
		return band, nil
	case TransformFireConfidence:
		nodata := 0.
		out := &raster.Band{
			Width:        band.Width,
			Height:       band.Height,
			GeoTransform: band.GeoTransform,
			Projection:   band.Projection,
			NoData:       &nodata,
			Data:         make([]float64, len(band.Data)),
		}
		for i, v := range band.Data {
			out.Data[i] = FireConfidence(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("Apply: unknown transform %q", t)
}
