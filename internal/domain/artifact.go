package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// ArtifactType names one of the versioned artifact kinds.
type ArtifactType string

const (
	ArtifactApplication      ArtifactType = "application"
	ArtifactInterface        ArtifactType = "interface"
	ArtifactBusinessProcess  ArtifactType = "business_process"
	ArtifactInternalProcess  ArtifactType = "internal_process"
	ArtifactTechnicalProcess ArtifactType = "technical_process"
)

// ArtifactTypes lists every kind in cascade order.
var ArtifactTypes = []ArtifactType{
	ArtifactApplication,
	ArtifactInterface,
	ArtifactBusinessProcess,
	ArtifactInternalProcess,
	ArtifactTechnicalProcess,
}

func ParseArtifactType(s string) (ArtifactType, error) {
	for _, t := range ArtifactTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid artifact type %q", s)
}

// Label is the human name used in messages.
func (t ArtifactType) Label() string {
	switch t {
	case ArtifactApplication:
		return "Application"
	case ArtifactInterface:
		return "Interface"
	case ArtifactBusinessProcess:
		return "Business Process"
	case ArtifactInternalProcess:
		return "Internal Activity"
	case ArtifactTechnicalProcess:
		return "Technical Process"
	}
	return string(t)
}

// Payload is the typed body of an artifact snapshot. The unexported method
// closes the set to the variants declared here.
type Payload interface {
	Type() ArtifactType
	Key() int64
	DisplayName() string
	sealed()
}

type Application struct {
	ID                    int64          `json:"id" yaml:"id"`
	AMLNumber             string         `json:"amlNumber,omitempty" yaml:"aml_number"`
	Name                  string         `json:"name" yaml:"name"`
	Description           string         `json:"description,omitempty" yaml:"description"`
	LOB                   string         `json:"lob,omitempty" yaml:"lob"`
	OS                    string         `json:"os,omitempty" yaml:"os"`
	Deployment            string         `json:"deployment,omitempty" yaml:"deployment"`
	Uptime                string         `json:"uptime,omitempty" yaml:"uptime"`
	Purpose               string         `json:"purpose,omitempty" yaml:"purpose"`
	ProvidesExtInterface  bool           `json:"providesExtInterface" yaml:"provides_ext_interface"`
	ConsumesExtInterfaces bool           `json:"consumesExtInterfaces" yaml:"consumes_ext_interfaces"`
	Status                string         `json:"status,omitempty" yaml:"status"`
	Criticality           string         `json:"criticality,omitempty" yaml:"criticality"`
	Team                  string         `json:"team,omitempty" yaml:"team"`
	TMFDomain             string         `json:"tmfDomain,omitempty" yaml:"tmf_domain"`
	TMFSubDomain          string         `json:"tmfSubDomain,omitempty" yaml:"tmf_sub_domain"`
	Version               string         `json:"version,omitempty" yaml:"version"`
	FirstActiveDate       string         `json:"firstActiveDate,omitempty" yaml:"first_active_date"`
	LastChangeDate        string         `json:"lastChangeDate,omitempty" yaml:"last_change_date"`
	DecommissionDate      string         `json:"decommissionDate,omitempty" yaml:"decommission_date"`
	Metadata              map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

type Interface struct {
	ID                    int64          `json:"id" yaml:"id"`
	IMLNumber             string         `json:"imlNumber" yaml:"iml_number"`
	ProviderApplicationID *int64         `json:"providerApplicationId,omitempty" yaml:"provider_application_id"`
	ConsumerApplicationID *int64         `json:"consumerApplicationId,omitempty" yaml:"consumer_application_id"`
	InterfaceType         string         `json:"interfaceType,omitempty" yaml:"interface_type"`
	Middleware            string         `json:"middleware,omitempty" yaml:"middleware"`
	Version               string         `json:"version,omitempty" yaml:"version"`
	Status                string         `json:"status,omitempty" yaml:"status"`
	Protocol              string         `json:"protocol,omitempty" yaml:"protocol"`
	DataFlow              string         `json:"dataFlow,omitempty" yaml:"data_flow"`
	Frequency             string         `json:"frequency,omitempty" yaml:"frequency"`
	Description           string         `json:"description,omitempty" yaml:"description"`
	SampleCode            string         `json:"sampleCode,omitempty" yaml:"sample_code"`
	LastChangeDate        string         `json:"lastChangeDate,omitempty" yaml:"last_change_date"`
	Metadata              map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

type BusinessProcess struct {
	ID               int64          `json:"id" yaml:"id"`
	ProcessID        string         `json:"processId,omitempty" yaml:"process_id"`
	Name             string         `json:"name" yaml:"name"`
	LOB              string         `json:"lob,omitempty" yaml:"lob"`
	Product          string         `json:"product,omitempty" yaml:"product"`
	Version          string         `json:"version,omitempty" yaml:"version"`
	Level            string         `json:"level,omitempty" yaml:"level"`
	Status           string         `json:"status,omitempty" yaml:"status"`
	ProcessType      string         `json:"processType,omitempty" yaml:"process_type"`
	BusinessFunction string         `json:"businessFunction,omitempty" yaml:"business_function"`
	StartEvent       string         `json:"startEvent,omitempty" yaml:"start_event"`
	EndEvent         string         `json:"endEvent,omitempty" yaml:"end_event"`
	Description      string         `json:"description,omitempty" yaml:"description"`
	Documentation    string         `json:"documentation,omitempty" yaml:"documentation"`
	InterfaceIDs     []int64        `json:"interfaceIds,omitempty" yaml:"interface_ids"`
	Metadata         map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

type InternalActivity struct {
	ID                int64          `json:"id" yaml:"id"`
	ApplicationID     *int64         `json:"applicationId,omitempty" yaml:"application_id"`
	Name              string         `json:"name" yaml:"name"`
	ActivityType      string         `json:"activityType,omitempty" yaml:"activity_type"`
	Description       string         `json:"description,omitempty" yaml:"description"`
	BusinessProcessID *int64         `json:"businessProcessId,omitempty" yaml:"business_process_id"`
	Status            string         `json:"status,omitempty" yaml:"status"`
	ProcessFlow       string         `json:"processFlow,omitempty" yaml:"process_flow"`
	Department        string         `json:"department,omitempty" yaml:"department"`
	Metadata          map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

type TechnicalProcess struct {
	ID                  int64          `json:"id" yaml:"id"`
	Name                string         `json:"name" yaml:"name"`
	JobName             string         `json:"jobName,omitempty" yaml:"job_name"`
	ApplicationID       *int64         `json:"applicationId,omitempty" yaml:"application_id"`
	Description         string         `json:"description,omitempty" yaml:"description"`
	Frequency           string         `json:"frequency,omitempty" yaml:"frequency"`
	Criticality         string         `json:"criticality,omitempty" yaml:"criticality"`
	Status              string         `json:"status,omitempty" yaml:"status"`
	Implementation      string         `json:"implementation,omitempty" yaml:"implementation"`
	Technology          string         `json:"technology,omitempty" yaml:"technology"`
	InterfaceIDs        []int64        `json:"interfaceIds,omitempty" yaml:"interface_ids"`
	InternalActivityIDs []int64        `json:"internalActivityIds,omitempty" yaml:"internal_activity_ids"`
	Metadata            map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

func (Application) Type() ArtifactType      { return ArtifactApplication }
func (Interface) Type() ArtifactType        { return ArtifactInterface }
func (BusinessProcess) Type() ArtifactType  { return ArtifactBusinessProcess }
func (InternalActivity) Type() ArtifactType { return ArtifactInternalProcess }
func (TechnicalProcess) Type() ArtifactType { return ArtifactTechnicalProcess }

func (a Application) Key() int64      { return a.ID }
func (i Interface) Key() int64        { return i.ID }
func (b BusinessProcess) Key() int64  { return b.ID }
func (a InternalActivity) Key() int64 { return a.ID }
func (t TechnicalProcess) Key() int64 { return t.ID }

func (a Application) DisplayName() string      { return a.Name }
func (i Interface) DisplayName() string        { return i.IMLNumber }
func (b BusinessProcess) DisplayName() string  { return b.Name }
func (a InternalActivity) DisplayName() string { return a.Name }
func (t TechnicalProcess) DisplayName() string { return t.Name }

func (Application) sealed()      {}
func (Interface) sealed()        {}
func (BusinessProcess) sealed()  {}
func (InternalActivity) sealed() {}
func (TechnicalProcess) sealed() {}

// DecodePayload parses raw JSON into the variant for t.
func DecodePayload(t ArtifactType, raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	switch t {
	case ArtifactApplication:
		var p Application
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case ArtifactInterface:
		var p Interface
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case ArtifactBusinessProcess:
		var p BusinessProcess
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case ArtifactInternalProcess:
		var p InternalActivity
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case ArtifactTechnicalProcess:
		var p TechnicalProcess
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("invalid artifact type %q", t)
}

// EncodePayload returns the JSON stored in artifact_data.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("payload required")
	}
	return json.Marshal(p)
}

// Fields flattens a payload into its generic field map, the shape the
// conflict detector and merge strategies operate on.
func Fields(p Payload) (map[string]any, error) {
	raw, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var payloadTypes = map[ArtifactType]reflect.Type{
	ArtifactApplication:      reflect.TypeOf(Application{}),
	ArtifactInterface:        reflect.TypeOf(Interface{}),
	ArtifactBusinessProcess:  reflect.TypeOf(BusinessProcess{}),
	ArtifactInternalProcess:  reflect.TypeOf(InternalActivity{}),
	ArtifactTechnicalProcess: reflect.TypeOf(TechnicalProcess{}),
}

// fieldNames returns the JSON keys the variant for t declares.
func fieldNames(t ArtifactType) (map[string]struct{}, error) {
	rt, ok := payloadTypes[t]
	if !ok {
		return nil, fmt.Errorf("invalid artifact type %q", t)
	}
	names := make(map[string]struct{}, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		name, _, _ := strings.Cut(rt.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			names[name] = struct{}{}
		}
	}
	return names, nil
}

// FromFields rebuilds the typed variant from a field map. The artifact id is
// forced to id so edits cannot retarget a snapshot. Keys the variant does not
// declare are kept under metadata; an explicit metadata entry wins.
func FromFields(t ArtifactType, id int64, fields map[string]any) (Payload, error) {
	known, err := fieldNames(t)
	if err != nil {
		return nil, err
	}
	copyFields := make(map[string]any, len(fields)+1)
	extra := map[string]any{}
	for k, v := range fields {
		if _, ok := known[k]; ok {
			copyFields[k] = v
			continue
		}
		extra[k] = v
	}
	copyFields["id"] = id
	if len(extra) > 0 {
		meta := map[string]any{}
		switch m := copyFields["metadata"].(type) {
		case nil:
		case map[string]any:
			meta = m
		default:
			return nil, fmt.Errorf("decode %s payload: metadata must be an object, got %T", t, m)
		}
		merged := make(map[string]any, len(meta)+len(extra))
		for k, v := range extra {
			merged[k] = v
		}
		for k, v := range meta {
			merged[k] = v
		}
		copyFields["metadata"] = merged
	}
	raw, err := json.Marshal(copyFields)
	if err != nil {
		return nil, err
	}
	return DecodePayload(t, raw)
}
