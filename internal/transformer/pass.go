package transformer

import (
	"bytes"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/open-policy-agent/jar-relocator/internal/archive"
	"github.com/open-policy-agent/jar-relocator/internal/logging"
	"github.com/open-policy-agent/jar-relocator/internal/metrics"
	"github.com/open-policy-agent/jar-relocator/internal/relocate"
)

const (
	classSuffix    = ".class"
	servicesPrefix = "META-INF/services/"
)

// Kind classifies the entries of a Plan.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindClass     Kind = "class"
	KindResource  Kind = "resource"
	KindService   Kind = "service"
	KindSkipped   Kind = "skipped" // output path already taken by an earlier resource
	KindDropped   Kind = "dropped" // rejected as a duplicate by the archive writer
)

// Mapping is one entry of a Plan. Original is empty for synthesised
// directories.
type Mapping struct {
	Original string
	Mapped   string
	Kind     Kind
}

// pass holds the state of one run over one jar.
type pass struct {
	matcher      *relocate.Matcher
	rewriter     *relocate.ClassRewriter
	serviceFiles bool
	w            *archive.Writer
	emitted      registry
	result       *Result
	log          *logging.Logger
	plan         []Mapping // recorded when non-nil
}

func (t *Transformer) newPass(w *archive.Writer, log *logging.Logger) *pass {
	return &pass{
		matcher:      t.matcher,
		rewriter:     relocate.NewClassRewriter(t.matcher),
		serviceFiles: t.serviceFiles,
		w:            w,
		emitted:      registry{},
		result:       &Result{},
		log:          log,
	}
}

// entry processes one entry of the source jar. Directory entries are not
// copied: the directories an output entry needs are synthesised instead.
func (p *pass) entry(f *zip.File) error {
	name := f.Name
	if strings.HasSuffix(name, "/") {
		return nil
	}
	p.result.Entries++

	mapped := p.matcher.MapPath(name)
	if err := p.parents(mapped, f.Modified); err != nil {
		return err
	}

	data, err := archive.ReadEntry(f)
	if err != nil {
		return err
	}

	if strings.HasSuffix(name, classSuffix) {
		return p.class(f, data)
	}

	kind := KindResource
	if p.serviceFiles && isServiceFile(name) {
		mapped, data = p.service(mapped, data)
		kind = KindService
	}

	if p.emitted.has(mapped) {
		p.log.Debugf("skipping %s: %s was already written", name, mapped)
		p.result.Skipped++
		p.record(name, mapped, KindSkipped)
		return nil
	}

	ok, err := p.write(name, archive.HeaderOf(f, mapped), data, kind)
	if err != nil {
		return err
	}
	p.emitted.add(mapped)
	if ok && kind == KindService {
		p.result.Services++
	}
	return nil
}

func (p *pass) class(f *zip.File, data []byte) error {
	out, err := p.rewriter.Rewrite(data)
	if err != nil {
		return &ClassRewriteError{Entry: f.Name, Err: err}
	}
	mapped := p.matcher.MapPath(strings.TrimSuffix(f.Name, classSuffix)) + classSuffix

	ok, err := p.write(f.Name, archive.HeaderOf(f, mapped), out, KindClass)
	if ok && !bytes.Equal(out, data) {
		p.result.Classes++
	}
	return err
}

// parents synthesises the directory entries above name that were not written
// yet, root first.
func (p *pass) parents(name string, modified time.Time) error {
	dir := path.Dir(name)
	if dir == "." || dir == "/" || p.emitted.has(dir) {
		return nil
	}
	if err := p.parents(dir, modified); err != nil {
		return err
	}

	err := p.w.Directory(dir, modified)
	switch {
	case errors.Is(err, archive.ErrDuplicateEntry):
		p.log.Warnf("dropping duplicate directory %s/", dir)
		p.result.Dropped++
		p.record("", dir+"/", KindDropped)
	case err != nil:
		return err
	default:
		p.result.Directories++
		p.record("", dir+"/", KindDirectory)
	}
	p.emitted.add(dir)
	return nil
}

// write writes an entry and reports whether it made it into the archive. An
// entry the archive writer rejects as a duplicate is logged and dropped.
func (p *pass) write(original string, h archive.Header, data []byte, kind Kind) (bool, error) {
	err := p.w.File(h, data)
	if errors.Is(err, archive.ErrDuplicateEntry) {
		p.log.Warnf("dropping %s: duplicate entry %s", original, h.Name)
		p.result.Dropped++
		p.record(original, h.Name, KindDropped)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if original != h.Name {
		p.log.Debugf("relocated %s to %s", original, h.Name)
		p.result.Relocated++
	}
	p.record(original, h.Name, kind)
	return true, nil
}

// record adds the entry to the plan, or counts it when the pass writes a jar.
func (p *pass) record(original, mapped string, kind Kind) {
	if p.plan != nil {
		p.plan = append(p.plan, Mapping{Original: original, Mapped: mapped, Kind: kind})
		return
	}
	metrics.EntriesProcessed.WithLabelValues(string(kind)).Inc()
}

func isServiceFile(name string) bool {
	return strings.HasPrefix(name, servicesPrefix) && !strings.Contains(name[len(servicesPrefix):], "/")
}

// service relocates a service provider file: its name is the service
// interface and each line names an implementation. Comments and blank lines
// are kept.
func (p *pass) service(mapped string, data []byte) (string, []byte) {
	mapped = path.Join(path.Dir(mapped), p.matcher.MapValue(path.Base(mapped)))

	lines := strings.SplitAfter(string(data), "\n")
	for i, line := range lines {
		content := line
		if j := strings.IndexByte(content, '#'); j >= 0 {
			content = content[:j]
		}
		provider := strings.TrimSpace(content)
		if provider == "" {
			continue
		}
		lines[i] = strings.Replace(line, provider, p.matcher.MapValue(provider), 1)
	}
	return mapped, []byte(strings.Join(lines, ""))
}
