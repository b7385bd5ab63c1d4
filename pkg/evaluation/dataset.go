// Copyright 2025 The Dowser Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package evaluation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Case is one evaluation query, optionally with a reference answer.
type Case struct {
	// Name labels the case in reports. Defaults to the query.
	Name string `yaml:"name,omitempty"`

	// Query fed to the engine.
	Query string `yaml:"query"`

	// GroundTruth is the reference answer, used for the correctness
	// score when present.
	GroundTruth string `yaml:"ground_truth,omitempty"`
}

// Dataset is a list of evaluation cases loaded from YAML.
type Dataset struct {
	Name  string `yaml:"name,omitempty"`
	Cases []Case `yaml:"cases"`
}

// LoadDataset reads and validates a dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate rejects datasets the runner cannot execute.
func (d *Dataset) Validate() error {
	if len(d.Cases) == 0 {
		return fmt.Errorf("dataset has no cases")
	}
	for i, c := range d.Cases {
		if strings.TrimSpace(c.Query) == "" {
			return fmt.Errorf("case %d has an empty query", i)
		}
	}
	return nil
}
