/* Copyright 2024 the holochain-go authors
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package dna reads application packages: the name, docs, and zomes
// (with their code) that define what an instance runs.
package dna

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jsccast/yaml"
)

// DNA is one application package.
type DNA struct {
	Name string `json:"name" yaml:"name"`

	// Description is Markdown.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Zomes []*Zome `json:"zomes" yaml:"zomes"`
}

// Zome is a named unit of application logic: some code and the
// functions it exposes.
type Zome struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Code is ECMAScript executed by the ribosome.
	Code string `json:"code" yaml:"code"`

	Functions []*Function `json:"functions,omitempty" yaml:"functions,omitempty"`
}

// Function declares one callable zome function.
type Function struct {
	Name string `json:"name" yaml:"name"`

	// Validating marks a function that validates entries on
	// behalf of the neighborhood.
	Validating bool `json:"validating,omitempty" yaml:"validating,omitempty"`
}

// Parse reads a DNA from YAML and validates its shape.
func Parse(bs []byte) (*DNA, error) {
	var d DNA
	if err := yaml.Unmarshal(bs, &d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads a DNA from a YAML file.
func Load(filename string) (*DNA, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}

// Validate checks that the package is usable.
func (d *DNA) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("dna needs a name")
	}
	if len(d.Zomes) == 0 {
		return fmt.Errorf("dna %q has no zomes", d.Name)
	}
	seen := make(map[string]bool, len(d.Zomes))
	for _, z := range d.Zomes {
		if z.Name == "" {
			return fmt.Errorf("dna %q has a nameless zome", d.Name)
		}
		if seen[z.Name] {
			return fmt.Errorf("dna %q has duplicate zome %q", d.Name, z.Name)
		}
		seen[z.Name] = true
		if z.Code == "" {
			return fmt.Errorf(`zome "%s/%s" has no code`, d.Name, z.Name)
		}
		fns := make(map[string]bool, len(z.Functions))
		for _, f := range z.Functions {
			if f.Name == "" {
				return fmt.Errorf(`zome "%s/%s" has a nameless function`, d.Name, z.Name)
			}
			if fns[f.Name] {
				return fmt.Errorf(`zome "%s/%s" has duplicate function %q`, d.Name, z.Name, f.Name)
			}
			fns[f.Name] = true
		}
	}
	return nil
}

// Zome finds a zome by name.
func (d *DNA) Zome(name string) (*Zome, bool) {
	for _, z := range d.Zomes {
		if z.Name == name {
			return z, true
		}
	}
	return nil, false
}

// Function finds a declared function by name.
func (z *Zome) Function(name string) (*Function, bool) {
	for _, f := range z.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Validator returns the zome's validating function, if it declares
// one.
func (z *Zome) Validator() (*Function, bool) {
	for _, f := range z.Functions {
		if f.Validating {
			return f, true
		}
	}
	return nil, false
}

// Hash is the content address of the package: the hex SHA-256 of its
// canonical JSON.  Peers running the same DNA share a hash (and so a
// network).
func (d *DNA) Hash() string {
	js, err := json.Marshal(d)
	if err != nil {
		// Only func/chan values can make Marshal fail, and DNA
		// has none.
		panic(err)
	}
	sum := sha256.Sum256(js)
	return hex.EncodeToString(sum[:])
}
