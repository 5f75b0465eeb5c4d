package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/goccy/go-yaml"

	"github.com/open-policy-agent/jar-relocator/internal/relocate"
)

// Internal configuration data structures for the relocator.

// Root is the top-level configuration structure.
type Root struct {
	Relocations   []*Relocation      `json:"relocations,omitempty"`
	Options       Options            `json:"options,omitzero"`
	ObjectStorage *ObjectStorage     `json:"object_storage,omitempty"`
	Secrets       map[string]*Secret `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.

	_ struct{} `additionalProperties:"false"`
}

// UnmarshalYAML injects the secrets into each secret reference so that internal
// callers can resolve credentials as needed.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	for name := range r.Secrets {
		r.Secrets[name] = cmp.Or(r.Secrets[name], &Secret{})
		r.Secrets[name].Name = name
	}

	if r.ObjectStorage != nil {
		if ref := r.ObjectStorage.credentials(); ref != nil {
			ref.value = r.Secrets[ref.Name]
		}
	}

	return nil
}

// Rules returns the relocation rules in configuration order.
func (r *Root) Rules() ([]*relocate.Rule, error) {
	rules := make([]*relocate.Rule, 0, len(r.Relocations))
	for i, rel := range r.Relocations {
		rule, err := rel.Rule()
		if err != nil {
			return nil, fmt.Errorf("relocation %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// AddRelocations appends relocations after the configured ones. Command line
// relocations are added this way, so configured rules take precedence.
func (r *Root) AddRelocations(rels ...*Relocation) {
	r.Relocations = append(r.Relocations, rels...)
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

// Relocation defines one package relocation. An empty pattern relocates every
// path; a missing shaded pattern nests the pattern under "hidden".
type Relocation struct {
	Pattern       string    `json:"pattern" required:"true"`
	ShadedPattern *string   `json:"shaded_pattern,omitempty"`
	Includes      StringSet `json:"includes,omitempty"`
	Excludes      StringSet `json:"excludes,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// ParseRelocation parses the command line form "pattern[=shaded]".
func ParseRelocation(s string) (*Relocation, error) {
	pattern, shaded, ok := strings.Cut(s, "=")
	rel := &Relocation{Pattern: pattern}
	if ok {
		rel.ShadedPattern = &shaded
	}
	return rel, rel.validate()
}

func (r *Relocation) UnmarshalJSON(bs []byte) error {
	type rawRelocation Relocation
	var raw rawRelocation

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode relocation: %w", err)
	}

	*r = Relocation(raw)
	return r.validate()
}

func (r *Relocation) UnmarshalYAML(bs []byte) error {
	type rawRelocation Relocation
	var raw rawRelocation

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode relocation: %w", err)
	}

	*r = Relocation(raw)
	return r.validate()
}

func (r *Relocation) validate() error {
	if _, err := r.Rule(); err != nil {
		return fmt.Errorf("relocation %q: %w", r.Pattern, err)
	}
	return nil
}

func (r *Relocation) Rule() (*relocate.Rule, error) {
	return relocate.NewRule(r.Pattern, r.ShadedPattern, r.Includes, r.Excludes)
}

func (r *Relocation) String() string {
	if r.ShadedPattern == nil {
		return r.Pattern
	}
	return r.Pattern + "=" + *r.ShadedPattern
}

// Options tune how jars are processed.
type Options struct {
	ServiceFiles bool   `json:"service_files,omitempty"` // Relocate META-INF/services provider files.
	TempDir      string `json:"temp_dir,omitempty"`      // Must be on the same file system as the jars.
	Jobs         int    `json:"jobs,omitempty" minimum:"1"`
	Revision     string `json:"revision,omitempty"` // Recorded with published jars, see ResolveRevision.

	_ struct{} `additionalProperties:"false"`
}

type StringSet []string

func (a StringSet) Add(value string) StringSet {
	if slices.Contains(a, value) {
		return a
	}
	return append(a, value)
}

func ParseFile(filename string) (root *Root, err error) {
	return ParseFiles([]string{filename})
}

// ParseFiles merges the configuration files (or directories of files) and
// parses the result. YAML, JSON and TOML files are accepted.
func ParseFiles(filenames []string) (*Root, error) {
	bs, err := Merge(filenames, true)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

// DefaultPath is the configuration file used when none is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "relocator", "config.yaml")
}

// LoadDefault parses the default configuration file. A missing file yields an
// empty configuration.
func LoadDefault() (*Root, error) {
	root, err := ParseFile(DefaultPath())
	if errors.Is(err, os.ErrNotExist) {
		return &Root{}, nil
	}
	return root, err
}

// ObjectStorage defines where relocated jars are published. At most one
// backend is set.
type ObjectStorage struct {
	AmazonS3          *AmazonS3          `json:"aws,omitempty"`
	GCPCloudStorage   *GCPCloudStorage   `json:"gcp,omitempty"`
	AzureBlobStorage  *AzureBlobStorage  `json:"azure,omitempty"`
	FileSystemStorage *FileSystemStorage `json:"filesystem,omitempty"`
}

func (o *ObjectStorage) UnmarshalJSON(bs []byte) error {
	type rawObjectStorage ObjectStorage
	var raw rawObjectStorage

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode object storage: %w", err)
	}

	*o = ObjectStorage(raw)
	return o.validate()
}

func (o *ObjectStorage) UnmarshalYAML(bs []byte) error {
	type rawObjectStorage ObjectStorage
	var raw rawObjectStorage

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode object storage: %w", err)
	}

	*o = ObjectStorage(raw)
	return o.validate()
}

func (o *ObjectStorage) credentials() *SecretRef {
	switch {
	case o.AmazonS3 != nil:
		return o.AmazonS3.Credentials
	case o.GCPCloudStorage != nil:
		return o.GCPCloudStorage.Credentials
	case o.AzureBlobStorage != nil:
		return o.AzureBlobStorage.Credentials
	}
	return nil
}

func (o *ObjectStorage) validate() error {
	var n int
	for _, set := range []bool{o.AmazonS3 != nil, o.GCPCloudStorage != nil, o.AzureBlobStorage != nil, o.FileSystemStorage != nil} {
		if set {
			n++
		}
	}
	if n > 1 {
		return errors.New("only one object storage backend may be configured")
	}

	if err := o.AmazonS3.validate(); err != nil {
		return err
	}
	if err := o.GCPCloudStorage.validate(); err != nil {
		return err
	}
	if err := o.AzureBlobStorage.validate(); err != nil {
		return err
	}
	return o.FileSystemStorage.validate()
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
// A key ending in '/' is a prefix the jar's file name is appended to.
type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Key         string     `json:"key"`
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// shared credentials file, ECS or EC2 instance role. More details in storage/s3.go.
	URL string `json:"url,omitempty"` // for test purposes
}

// GCPCloudStorage defines the configuration for a Google Cloud Storage bucket.
type GCPCloudStorage struct {
	Project     string     `json:"project"`
	Bucket      string     `json:"bucket"`
	Object      string     `json:"object"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// file created by gcloud auth application-default login, GCE/GKE metadata server.
}

// AzureBlobStorage defines the configuration for an Azure Blob Storage container.
type AzureBlobStorage struct {
	AccountURL  string     `json:"account_url"`
	Container   string     `json:"container"`
	Path        string     `json:"path"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// managed identity, Azure CLI login.
}

// FileSystemStorage copies relocated jars to a local directory.
type FileSystemStorage struct {
	Path string `json:"path"`
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	if a.Key == "" {
		return errors.New("amazon s3 key is required")
	}

	if a.Region == "" {
		return errors.New("amazon s3 region is required")
	}

	return nil
}

func (g *GCPCloudStorage) validate() error {
	if g == nil {
		return nil
	}

	if g.Project == "" {
		return errors.New("gcp cloud storage project is required")
	}

	if g.Bucket == "" {
		return errors.New("gcp cloud storage bucket is required")
	}

	if g.Object == "" {
		return errors.New("gcp cloud storage object is required")
	}

	return nil
}

func (a *AzureBlobStorage) validate() error {
	if a == nil {
		return nil
	}

	if a.AccountURL == "" {
		return errors.New("azure blob storage account URL is required")
	}

	if a.Container == "" {
		return errors.New("azure blob storage container is required")
	}

	if a.Path == "" {
		return errors.New("azure blob storage path is required")
	}

	return nil
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}

// ObjectName returns the object name a jar called base is published under:
// name itself, or name followed by base when name ends in '/'.
func ObjectName(name, base string) string {
	if strings.HasSuffix(name, "/") {
		return name + base
	}
	return name
}
