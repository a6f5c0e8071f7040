package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/dasim"
)

// ItemSpec is one item of an address space file.
type ItemSpec struct {
	ID          string `yaml:"id"`
	Value       any    `yaml:"value"`
	DataType    string `yaml:"type"`
	Unit        string `yaml:"unit"`
	Description string `yaml:"description"`
	Writable    bool   `yaml:"writable"`
	NoRead      bool   `yaml:"noRead"`
}

// SpaceFile is the layout of an address space file:
//
//	items:
//	  - id: Line1.Temp
//	    value: 21.5
//	    unit: degC
//	  - id: Line1.Running
//	    value: true
type SpaceFile struct {
	Items []ItemSpec `yaml:"items"`
}

// defaultItems is the demo plant served when no file is given.
func defaultItems() []ItemSpec {
	return []ItemSpec{
		{ID: "Line1.Temperature", Value: 21.5, Unit: "degC", Description: "Oven temperature"},
		{ID: "Line1.Pressure", Value: 1.013, Unit: "bar"},
		{ID: "Line1.Running", Value: true},
		{ID: "Line1.Count", Value: int64(0), Description: "Parts produced"},
		{ID: "Line2.Temperature", Value: 19.0, Unit: "degC"},
		{ID: "Line2.Speed", Value: 1200.0, Unit: "rpm", Writable: true},
		{ID: "Line2.Alarm", Value: false},
		{ID: "Utilities.Power", Value: 412.0, Unit: "kW"},
		{ID: "Utilities.Secret", Value: int64(42), NoRead: true},
	}
}

// loadSpace reads an address space file.
func loadSpace(path string) ([]ItemSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f SpaceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, it := range f.Items {
		if it.ID == "" {
			return nil, fmt.Errorf("%s: item %d has no id", path, i)
		}
	}
	return f.Items, nil
}

// populate puts the items into the address space. YAML integers decode as
// int and are widened to int64 so the simulator's perturbation applies.
func populate(space *dasim.AddressSpace, items []ItemSpec) {
	now := time.Now()
	for _, it := range items {
		value := it.Value
		if v, ok := value.(int); ok {
			value = int64(v)
		}
		space.Put(it.ID, dasim.Item{
			Value:       value,
			Quality:     dasim.QualityGood,
			Timestamp:   now,
			DataType:    it.DataType,
			Unit:        it.Unit,
			Description: it.Description,
			Writable:    it.Writable,
			NoRead:      it.NoRead,
		})
	}
}
