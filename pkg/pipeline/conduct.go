// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package pipeline

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/metastore"
	"metatree.io/metatree/pkg/metatree"
)

// ElementSpec names one pipeline element and its arguments.
type ElementSpec struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// Spec is the JSON-serialized definition of a pipeline: one provider
// and an ordered chain of processors.
type Spec struct {
	Provider   ElementSpec   `json:"provider"`
	Processors []ElementSpec `json:"processors"`
}

// ParseSpec decodes a pipeline definition.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, ErrConfiguration.Wrap(err)
	}
	if spec.Provider.Name == "" {
		return nil, ErrConfiguration.New("missing provider")
	}
	if len(spec.Processors) == 0 {
		return nil, ErrConfiguration.New("missing processors")
	}
	return &spec, nil
}

// Environment carries the resources pipeline elements are built
// against.
type Environment struct {
	Log        *zap.Logger
	Repository dataset.Repository
	Store      *metastore.Store
	AgentName  string
	AgentEmail string
}

// Build assembles a run from a pipeline definition. Unknown element
// names are configuration errors; nothing is scheduled for them.
func (env *Environment) Build(spec *Spec, jobs int) (*Run, error) {
	provider, err := env.buildProvider(spec.Provider)
	if err != nil {
		return nil, err
	}

	processors := make([]Processor, 0, len(spec.Processors))
	for _, element := range spec.Processors {
		processor, err := env.buildProcessor(element)
		if err != nil {
			return nil, err
		}
		processors = append(processors, processor)
	}

	return NewRun(env.Log, provider, processors, jobs)
}

func (env *Environment) buildProvider(element ElementSpec) (Provider, error) {
	switch element.Name {
	case "dataset-traverse":
		recursive, err := boolArgument(element, "recursive", true)
		if err != nil {
			return nil, err
		}
		return NewTraverse(env.Repository, TraverseConfig{
			ItemTypes: element.Arguments["item_types"],
			Recursive: recursive,
		})
	default:
		return nil, ErrConfiguration.New("unknown provider %q", element.Name)
	}
}

func (env *Environment) buildProcessor(element ElementSpec) (Processor, error) {
	switch element.Name {
	case "extract":
		parameters := make(map[string]string, len(element.Arguments))
		for key, value := range element.Arguments {
			switch key {
			case "extractor_name", "subject_type":
			default:
				parameters[key] = value
			}
		}
		return NewExtractStage(env.Log, ExtractConfig{
			ExtractorName: element.Arguments["extractor_name"],
			SubjectType:   metatree.RecordType(element.Arguments["subject_type"]),
			Parameters:    parameters,
			AgentName:     env.AgentName,
			AgentEmail:    env.AgentEmail,
		})
	case "add":
		aggregate, err := boolArgument(element, "aggregate", false)
		if err != nil {
			return nil, err
		}
		return NewAddStage(env.Log, env.Store, AddConfig{
			Aggregate:     aggregate,
			RootDatasetID: env.Repository.ID(),
		}), nil
	default:
		return nil, ErrConfiguration.New("unknown processor %q", element.Name)
	}
}

func boolArgument(element ElementSpec, key string, fallback bool) (bool, error) {
	value, exists := element.Arguments[key]
	if !exists {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, ErrConfiguration.New("%s.%s: %v", element.Name, key, err)
	}
	return parsed, nil
}
