package classpath

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
)

const (
	metaInf         = "META-INF/"
	metaInfVersions = "META-INF/versions/"
	manifestName    = "META-INF/MANIFEST.MF"
)

// Container is one classpath element: a directory tree or a jar.
type Container interface {
	// Path is the file system path the container was opened from.
	Path() string
	// Entries lists every file entry, slash separated. Versioned entries of
	// a multi-release jar are listed under their base name.
	Entries() ([]string, error)
	// Read returns the bytes of an entry, or an error wrapping fs.ErrNotExist.
	Read(name string) ([]byte, error)
	Close() error
}

// Open opens path as a Directory when it is one and as a Jar otherwise.
func Open(path string) (Container, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open classpath element: %w", err)
	}
	if info.IsDir() {
		return NewDirectory(path), nil
	}
	return OpenJar(path)
}

// Directory is a class tree on disk.
type Directory struct {
	root string
	mu   sync.Mutex
}

// NewDirectory returns a container rooted at root.
func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

func (d *Directory) Path() string { return d.root }

func (d *Directory) Entries() ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	sort.Strings(out)
	return out, nil
}

func (d *Directory) Read(name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return os.ReadFile(filepath.Join(d.root, filepath.FromSlash(name)))
}

func (d *Directory) Close() error { return nil }

// Jar is a zip archive of classes. Multi-release jars (manifest attribute
// Multi-Release: true) serve the entry under META-INF/versions/N/ with the
// highest N >= 9 in place of the base entry.
type Jar struct {
	path     string
	zr       *zip.ReadCloser
	files    map[string]*zip.File
	releases []int // descending

	mu sync.Mutex
}

// OpenJar opens the archive at path.
func OpenJar(path string) (*Jar, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open jar %s: %w", path, err)
	}
	j := &Jar{path: path, zr: zr, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			j.files[f.Name] = f
		}
	}

	multi, err := j.multiRelease()
	if err != nil {
		_ = zr.Close()
		return nil, err
	}
	if multi {
		seen := map[int]bool{}
		for name := range j.files {
			if v := versionOf(name); v != 0 && !seen[v] {
				seen[v] = true
				j.releases = append(j.releases, v)
			}
		}
		sort.Sort(sort.Reverse(sort.IntSlice(j.releases)))
	}
	return j, nil
}

func (j *Jar) multiRelease() (bool, error) {
	f, ok := j.files[manifestName]
	if !ok {
		return false, nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return false, fmt.Errorf("read manifest of %s: %w", j.path, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.EqualFold(strings.TrimSpace(key), "Multi-Release") {
			return strings.EqualFold(strings.TrimSpace(value), "true"), nil
		}
	}
	return false, scanner.Err()
}

// versionOf returns N for META-INF/versions/N/... entries with N >= 9, else 0.
func versionOf(name string) int {
	rest, ok := strings.CutPrefix(name, metaInfVersions)
	if !ok {
		return 0
	}
	num, _, ok := strings.Cut(rest, "/")
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(num)
	if err != nil || v < 9 {
		return 0
	}
	return v
}

func (j *Jar) Path() string { return j.path }

// Releases returns the versions present in a multi-release jar, highest first.
func (j *Jar) Releases() []int { return j.releases }

func (j *Jar) Entries() ([]string, error) {
	set := make(map[string]struct{}, len(j.files))
	for name := range j.files {
		if len(j.releases) > 0 {
			if v := versionOf(name); v != 0 {
				name = name[len(metaInfVersions)+len(strconv.Itoa(v))+1:]
			}
		}
		set[name] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (j *Jar) Read(name string) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !strings.HasPrefix(name, metaInf) {
		for _, v := range j.releases {
			if f, ok := j.files[metaInfVersions+strconv.Itoa(v)+"/"+name]; ok {
				return readZipFile(f)
			}
		}
	}
	if f, ok := j.files[name]; ok {
		return readZipFile(f)
	}
	return nil, fmt.Errorf("%s!/%s: %w", j.path, name, fs.ErrNotExist)
}

func (j *Jar) Close() error { return j.zr.Close() }

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// IsNotExist reports whether err means a container has no such entry.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
