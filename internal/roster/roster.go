// Package roster is the read-only student directory loaded from student_data.json.
package roster

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/valyala/fastjson"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
)

// UnknownName is displayed for ids missing from the roster.
const UnknownName = "Unknown User"

// Directory maps registration numbers to profiles.
type Directory struct {
	byID  map[string]model.Profile
	order []string
}

func New(profiles ...model.Profile) *Directory {
	d := &Directory{byID: make(map[string]model.Profile, len(profiles))}
	for _, p := range profiles {
		if p.RegNumber == "" {
			continue
		}
		if _, dup := d.byID[p.RegNumber]; !dup {
			d.order = append(d.order, p.RegNumber)
		}
		d.byID[p.RegNumber] = p
	}
	return d
}

// Load reads the roster file. A missing file gives an empty directory.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Errorf("roster: %s not found, starting with an empty roster", path)
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("roster.Load: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster.Load %s: %w", path, err)
	}
	logger.Infof("roster: %d students loaded from %s", d.Len(), path)
	return d, nil
}

// Parse decodes a JSON array of student objects. Numbers and strings are both accepted for
// scalar fields.
func Parse(data []byte) (*Directory, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	items, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("roster must be a JSON array: %w", err)
	}
	profiles := make([]model.Profile, 0, len(items))
	for _, it := range items {
		if it.Type() != fastjson.TypeObject {
			continue
		}
		prof := model.Profile{
			RegNumber:  text(it, "Registration Number"),
			Name:       text(it, "Name"),
			FatherName: text(it, "Father's Name"),
			Branch:     text(it, "Branch"),
			Gender:     text(it, "Gender"),
			State:      text(it, "State"),
			Section:    text(it, "Section"),
		}
		if cgpa := it.Get("CGPA"); cgpa != nil {
			switch cgpa.Type() {
			case fastjson.TypeNumber:
				prof.CGPA = cgpa.GetFloat64()
			case fastjson.TypeString:
				prof.CGPA = string(cgpa.GetStringBytes())
			}
		}
		profiles = append(profiles, prof)
	}
	return New(profiles...), nil
}

func text(v *fastjson.Value, key string) string {
	f := v.Get(key)
	if f == nil {
		return ""
	}
	switch f.Type() {
	case fastjson.TypeString:
		return string(f.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := f.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return f.String()
	}
	return ""
}

func (d *Directory) Lookup(regNumber string) (model.Profile, bool) {
	p, ok := d.byID[regNumber]
	return p, ok
}

// Name returns the student name or UnknownName.
func (d *Directory) Name(regNumber string) string {
	if p, ok := d.byID[regNumber]; ok && p.Name != "" {
		return p.Name
	}
	return UnknownName
}

func (d *Directory) Len() int { return len(d.order) }
