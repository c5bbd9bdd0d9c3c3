package fetch

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

type deferredLink struct {
	entry    string
	name     string
	linkname string
	hard     bool
}

// extractTarGz extracts a gzip-compressed tar stream into destDir, dropping
// the first strip path segments of every entry. Entries left with no path are
// skipped. Links are created after all regular files exist, hard links
// before symlinks, so no write ever passes through an extracted symlink.
func extractTarGz(r io.Reader, destDir string, strip int) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return &ExtractionError{Err: fmt.Errorf("create gzip reader: %w", err)}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var links []deferredLink

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		// insecure names still get a header; securejoin confines them below
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return &ExtractionError{Err: fmt.Errorf("read tar header: %w", err)}
		}

		name, ok := stripComponents(header.Name, strip)
		if !ok {
			continue
		}

		target, err := securejoin.SecureJoin(destDir, name)
		if err != nil {
			return &ExtractionError{Entry: header.Name, Err: err}
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return &ExtractionError{Entry: header.Name, Err: fmt.Errorf("create directory: %w", err)}
			}

		case tar.TypeReg:
			if err := writeEntry(tr, target, header); err != nil {
				return &ExtractionError{Entry: header.Name, Err: err}
			}

		case tar.TypeSymlink:
			resolved := path.Join(path.Dir(name), header.Linkname)
			if path.IsAbs(header.Linkname) || !withinRoot(resolved) {
				return &ExtractionError{Entry: header.Name, Err: fmt.Errorf("symlink target %q escapes destination", header.Linkname)}
			}
			links = append(links, deferredLink{entry: header.Name, name: name, linkname: header.Linkname})

		case tar.TypeLink:
			linked, ok := stripComponents(header.Linkname, strip)
			if !ok {
				return &ExtractionError{Entry: header.Name, Err: fmt.Errorf("hard link target %q stripped away", header.Linkname)}
			}
			links = append(links, deferredLink{entry: header.Name, name: name, linkname: linked, hard: true})

		default:
			// pax global headers, devices and fifos are not part of a runtime tree
			continue
		}
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].hard && !links[j].hard
	})
	for _, link := range links {
		if err := createLink(destDir, link); err != nil {
			return &ExtractionError{Entry: link.entry, Err: err}
		}
	}

	return nil
}

// createLink resolves the link's location against what is on disk now, so
// symlinks created earlier in the pass are followed and confined.
func createLink(destDir string, link deferredLink) error {
	target, err := securejoin.SecureJoin(destDir, link.name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	if link.hard {
		source, err := securejoin.SecureJoin(destDir, link.linkname)
		if err != nil {
			return err
		}
		if err := os.Link(source, target); err != nil {
			return fmt.Errorf("create hard link: %w", err)
		}
		return nil
	}

	linkname, err := confineSymlink(destDir, target, link.linkname)
	if err != nil {
		return err
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	return nil
}

// confineSymlink cleans linkname and checks that, read from the real parent
// directory of target, it stays inside destDir. The cleaned form is returned
// so later symlinks cannot change what a ".." inside it refers to.
func confineSymlink(destDir, target, linkname string) (string, error) {
	if path.IsAbs(linkname) || filepath.IsAbs(linkname) {
		return "", fmt.Errorf("symlink target %q escapes destination", linkname)
	}
	cleaned := filepath.Clean(filepath.FromSlash(linkname))
	rel, err := filepath.Rel(destDir, filepath.Join(filepath.Dir(target), cleaned))
	if err != nil || !withinRoot(filepath.ToSlash(rel)) {
		return "", fmt.Errorf("symlink target %q escapes destination", linkname)
	}
	return cleaned, nil
}

func writeEntry(r io.Reader, target string, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	mode := header.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// stripComponents removes the first n segments from a slash-separated archive
// path. "." and empty segments do not count. ok is false when nothing remains.
func stripComponents(name string, n int) (string, bool) {
	var parts []string
	for _, p := range strings.Split(name, "/") {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) <= n {
		return "", false
	}
	return path.Join(parts[n:]...), true
}

// withinRoot reports whether a cleaned relative path stays inside its root.
func withinRoot(rel string) bool {
	rel = path.Clean(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../") && !path.IsAbs(rel)
}
