package service

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"klaus/elevation/dtm-raster-functions/pkg/coords"
	"klaus/elevation/dtm-raster-functions/pkg/latitude"
	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
	"klaus/elevation/dtm-raster-functions/pkg/sri"
	"klaus/elevation/dtm-raster-functions/pkg/vrm"
)

// Catalog represents all hosted raster functions (readonly after initialization).
type Catalog struct {
	transforms map[string]rasterfn.Transform
	names      []string
}

/*
NewCatalog builds the catalog of raster functions configured by config.
Spatial references of the latitude function are resolved with resolver.
*/
func NewCatalog(config Config, resolver coords.Resolver) (*Catalog, error) {
	strategy, err := latitude.ParseStrategy(config.LatitudeStrategy)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at latitude.ParseStrategy()", err)
	}
	boundary, err := vrm.ParseBoundary(config.VRMBoundary)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at vrm.ParseBoundary()", err)
	}
	noData, err := vrm.ParseNoDataPolicy(config.VRMNoData)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at vrm.ParseNoDataPolicy()", err)
	}

	catalog := &Catalog{transforms: make(map[string]rasterfn.Transform)}
	catalog.add(latitude.New(resolver, latitude.WithStrategy(strategy)))
	catalog.add(sri.New())
	catalog.add(vrm.New(vrm.WithBoundary(boundary), vrm.WithNoData(noData), vrm.WithMaxSize(config.VRMMaxSize)))

	slog.Info("raster function catalog successfully build", "functions", catalog.names, "latitude strategy", strategy.String(),
		"vrm boundary", boundary.String(), "vrm no-data", noData.String())
	return catalog, nil
}

func (c *Catalog) add(t rasterfn.Transform) {
	c.transforms[t.Name()] = t
	c.names = append(c.names, t.Name())
	sort.Strings(c.names)
}

// Names returns the sorted function names.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Lookup returns the transform registered under name.
func (c *Catalog) Lookup(name string) (rasterfn.Transform, error) {
	t, found := c.transforms[name]
	if !found {
		return nil, &rasterfn.ConfigurationError{Param: "function", Reason: fmt.Sprintf("raster function [%s] not found", name)}
	}
	return t, nil
}

/*
Describe returns the description of all functions, sorted by name.
*/
func (c *Catalog) Describe() []FunctionDescription {
	descriptions := make([]FunctionDescription, 0, len(c.names))
	for _, name := range c.names {
		t := c.transforms[name]
		descriptions = append(descriptions, FunctionDescription{
			Name:          t.Name(),
			Description:   t.Description(),
			Parameters:    t.Parameters(),
			Configuration: t.Configuration(nil),
		})
	}
	return descriptions
}

/*
SaveCSV saves the function parameters as sorted csv file.
*/
func (c *Catalog) SaveCSV(filename string) error {
	// open csv file
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error [%w] at os.Create()", err)
	}
	defer file.Close()

	// create csv writer
	writer := csv.NewWriter(file)

	// write header
	header := []string{"Function", "Parameter", "DataType", "Required", "Default", "DisplayName", "Description"}
	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("error [%w] at writer.Write()", err)
	}

	// iterate over sorted functions
	for _, description := range c.Describe() {
		for _, parameter := range description.Parameters {
			defaultValue := ""
			if parameter.Value != nil {
				defaultValue = fmt.Sprint(parameter.Value)
			}

			// create and write csv line
			row := []string{description.Name, parameter.Name, string(parameter.DataType), strconv.FormatBool(parameter.Required),
				defaultValue, parameter.DisplayName, parameter.Description}
			err = writer.Write(row)
			if err != nil {
				return fmt.Errorf("error [%w] at writer.Write()", err)
			}
		}
	}

	writer.Flush()
	err = writer.Error()
	if err != nil {
		return fmt.Errorf("error [%w] at writer.Error()", err)
	}

	return nil
}
