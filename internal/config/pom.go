package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

const (
	relocatorPlugin = "relocator-maven-plugin"
	shadePlugin     = "maven-shade-plugin"
)

var property = regexp.MustCompile(`\$\{[^}]+\}`)

// POM is what the relocator reads from a Maven project file: the artifact the
// build produces and the relocations configured for the relocator and shade
// plugins.
type POM struct {
	GroupID         string
	ArtifactID      string
	Version         string
	Packaging       string
	Directory       string // project.build.directory
	OutputDirectory string // relocator plugin outputDirectory, Directory when unset
	Relocations     []*Relocation
}

// Artifact returns the path of the artifact relative to the project directory:
// artifactId-version.extension inside the output directory. The build's
// finalName does not apply.
func (p *POM) Artifact() string {
	ext := "jar"
	switch p.Packaging {
	case "war", "ear":
		ext = p.Packaging
	}
	return filepath.Join(p.OutputDirectory, p.ArtifactID+"-"+p.Version+"."+ext)
}

func ParsePOMFile(filename string) (*POM, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read pom file %s: %w", filename, err)
	}

	return ParsePOM(bs)
}

// ParsePOM reads a pom.xml. Relocations are taken from every
// relocator-maven-plugin declaration and then from every maven-shade-plugin
// declaration, plugin level configuration first, then each execution. Project
// properties referenced as ${name} are expanded; unknown properties are kept
// as is.
func ParsePOM(bs []byte) (*POM, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(bs); err != nil {
		return nil, fmt.Errorf("failed to parse pom: %w", err)
	}

	project := doc.SelectElement("project")
	if project == nil {
		return nil, errors.New("failed to parse pom: missing project element")
	}

	pom := &POM{
		GroupID:    text(project, "groupId"),
		ArtifactID: text(project, "artifactId"),
		Version:    text(project, "version"),
		Packaging:  text(project, "packaging"),
	}
	if pom.GroupID == "" {
		pom.GroupID = text(project, "parent", "groupId")
	}
	if pom.Version == "" {
		pom.Version = text(project, "parent", "version")
	}
	if pom.Packaging == "" {
		pom.Packaging = "jar"
	}

	props := map[string]string{
		"project.groupId":    pom.GroupID,
		"project.artifactId": pom.ArtifactID,
		"project.version":    pom.Version,
		"project.basedir":    ".",
		"basedir":            ".",
	}
	if el := project.SelectElement("properties"); el != nil {
		for _, p := range el.ChildElements() {
			props[p.Tag] = strings.TrimSpace(p.Text())
		}
	}
	expand := func(s string) string {
		return property.ReplaceAllStringFunc(s, func(ref string) string {
			if v, ok := props[ref[2:len(ref)-1]]; ok {
				return v
			}
			return ref
		})
	}

	pom.Directory = expand(text(project, "build", "directory"))
	if pom.Directory == "" {
		pom.Directory = "target"
	}
	props["project.build.directory"] = pom.Directory

	for _, artifactID := range []string{relocatorPlugin, shadePlugin} {
		for _, cfg := range pluginConfigs(project, artifactID) {
			if artifactID == relocatorPlugin && pom.OutputDirectory == "" {
				pom.OutputDirectory = expand(text(cfg, "outputDirectory"))
			}

			rels, err := relocations(cfg, expand)
			if err != nil {
				return nil, err
			}
			pom.Relocations = append(pom.Relocations, rels...)
		}
	}
	if pom.OutputDirectory == "" {
		pom.OutputDirectory = pom.Directory
	}

	return pom, nil
}

// pluginConfigs returns the configuration elements of every declaration of the
// plugin, each plugin level configuration followed by its executions'.
func pluginConfigs(project *etree.Element, artifactID string) []*etree.Element {
	var configs []*etree.Element
	for _, path := range []string{"./build/plugins/plugin", "./build/pluginManagement/plugins/plugin"} {
		for _, plugin := range project.FindElements(path) {
			if text(plugin, "artifactId") != artifactID {
				continue
			}
			if cfg := plugin.SelectElement("configuration"); cfg != nil {
				configs = append(configs, cfg)
			}
			if executions := plugin.SelectElement("executions"); executions != nil {
				for _, execution := range executions.SelectElements("execution") {
					if cfg := execution.SelectElement("configuration"); cfg != nil {
						configs = append(configs, cfg)
					}
				}
			}
		}
	}
	return configs
}

func relocations(cfg *etree.Element, expand func(string) string) ([]*Relocation, error) {
	if cfg == nil {
		return nil, nil
	}

	var rels []*Relocation
	for _, el := range cfg.FindElements("./relocations/relocation") {
		raw := map[string]any{
			"pattern":  expand(text(el, "pattern")),
			"includes": texts(el, "includes", "include", expand),
			"excludes": texts(el, "excludes", "exclude", expand),
		}
		if shaded := el.SelectElement("shadedPattern"); shaded != nil {
			raw["shaded_pattern"] = expand(strings.TrimSpace(shaded.Text()))
		}

		var rel Relocation
		if err := decode(raw, &rel); err != nil {
			return nil, fmt.Errorf("failed to decode relocation: %w", err)
		}
		if err := rel.validate(); err != nil {
			return nil, err
		}
		rels = append(rels, &rel)
	}
	return rels, nil
}

// text returns the trimmed text of the element at path below e, or "".
func text(e *etree.Element, path ...string) string {
	for _, tag := range path {
		if e == nil {
			return ""
		}
		e = e.SelectElement(tag)
	}
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text())
}

func texts(e *etree.Element, list, item string, expand func(string) string) []string {
	parent := e.SelectElement(list)
	if parent == nil {
		return nil
	}

	var out []string
	for _, el := range parent.SelectElements(item) {
		out = append(out, expand(strings.TrimSpace(el.Text())))
	}
	return out
}
