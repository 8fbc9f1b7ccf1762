// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"io/ioutil"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/value"
)

// ClassesFile is the YAML file with definitions of classes the server
// sends. Example:
//
//	classes:
//	- name: Room
//	  properties:
//	  - key: title
//	    kind: string
//	  - key: members
//	    kind: ref-list
//	- name: Member
//	  properties:
//	  - key: nick
//	    kind: string
//	    default: anonymous
type ClassesFile struct {
	Classes []ClassDef `json:"classes"`
}

// ClassDef defines one class.
type ClassDef struct {
	Name       string        `json:"name"`
	Properties []PropertyDef `json:"properties"`
}

// PropertyDef defines one property of a class.
type PropertyDef struct {
	Key             string      `json:"key"`
	Kind            string      `json:"kind"`
	Default         interface{} `json:"default,omitempty"`
	DontSync        bool        `json:"dont-sync,omitempty"`
	MinSyncInterval string      `json:"min-sync-interval,omitempty"`
}

// descriptors converts definitions into class descriptors.
func (f *ClassesFile) descriptors() ([]model.ClassDescriptor, error) {
	var descs []model.ClassDescriptor
	for _, class := range f.Classes {
		desc := model.ClassDescriptor{Name: class.Name}
		for _, prop := range class.Properties {
			kind, err := value.ParseKind(prop.Kind)
			if err != nil {
				return nil, errors.Wrapf(err, "class %s, property %s", class.Name, prop.Key)
			}
			info := model.PropertyInfo{
				Key:      prop.Key,
				Kind:     kind,
				Default:  prop.Default,
				DontSync: prop.DontSync,
			}
			if prop.MinSyncInterval != "" {
				if info.MinSyncInterval, err = time.ParseDuration(prop.MinSyncInterval); err != nil {
					return nil, errors.Wrapf(err, "class %s, property %s", class.Name, prop.Key)
				}
			}
			desc.Properties = append(desc.Properties, info)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

// registerClasses parses class definitions and registers them into <registry>.
func registerClasses(data []byte, registry *model.Registry) error {
	var file ClassesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "failed to parse class definitions")
	}
	descs, err := file.descriptors()
	if err != nil {
		return err
	}
	for _, desc := range descs {
		if _, err := registry.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

// loadClasses registers classes from the file given by --classes into
// the default registry.
func loadClasses() error {
	if globalFlags.Classes == "" {
		return nil
	}
	data, err := ioutil.ReadFile(globalFlags.Classes)
	if err != nil {
		return err
	}
	return registerClasses(data, model.DefaultRegistry)
}
