package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

const (
	redirectDirective = "//go:redirect-from"
	tableSection      = ".goredirectstbl"
)

// redirect maps a runtime symbol to its kernel replacement.
type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

// modulePath returns the module path declared in the go.mod file at
// goModPath. Fully qualified symbol names start with it.
func modulePath(goModPath string) (string, error) {
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return "", err
	}

	modPath := modfile.ModulePath(data)
	if modPath == "" {
		return "", fmt.Errorf("%s: missing module directive", goModPath)
	}
	return modPath, nil
}

// findRedirects parses every non-test Go file below root (a path relative to
// the module root) and returns the annotated functions sorted by source
// symbol.
func findRedirects(modPath, root string) ([]*redirect, error) {
	var redirects []*redirect

	err := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		if filepath.Ext(file) != ".go" || strings.HasSuffix(file, "_test.go") {
			return nil
		}

		pkgPath := path.Join(modPath, filepath.ToSlash(filepath.Dir(file)))
		found, err := fileRedirects(file, pkgPath)
		if err != nil {
			return err
		}

		redirects = append(redirects, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(redirects, func(i, j int) bool {
		return redirects[i].src < redirects[j].src
	})
	return redirects, nil
}

func fileRedirects(file, pkgPath string) ([]*redirect, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	var redirects []*redirect
	for _, decl := range f.Decls {
		fnDecl, ok := decl.(*ast.FuncDecl)
		if !ok || fnDecl.Doc == nil || fnDecl.Recv != nil {
			continue
		}

		for _, comment := range fnDecl.Doc.List {
			if !strings.HasPrefix(comment.Text, redirectDirective) {
				continue
			}

			dst := pkgPath + "." + fnDecl.Name.Name
			fields := strings.Fields(comment.Text)
			if len(fields) != 2 || fields[0] != redirectDirective {
				return nil, fmt.Errorf("%s: malformed go:redirect-from syntax for %q", fset.Position(comment.Pos()), dst)
			}

			redirects = append(redirects, &redirect{src: fields[1], dst: dst})
		}
	}

	return redirects, nil
}

// resolveSymbols looks up the address of both ends of each redirect in the
// ELF symbol table of imgFile.
func resolveSymbols(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	symbols, err := f.Symbols()
	if err != nil {
		return err
	}

	addrs := make(map[string]uint64, len(symbols))
	for _, symbol := range symbols {
		addrs[symbol.Name] = symbol.Value
	}

	for _, r := range redirects {
		r.srcVMA, r.dstVMA = addrs[r.src], addrs[r.dst]
		switch {
		case r.srcVMA == 0:
			return fmt.Errorf("%s: could not locate address of %q", imgFile, r.src)
		case r.dstVMA == 0:
			return fmt.Errorf("%s: could not locate address of %q", imgFile, r.dst)
		}
	}

	return nil
}

// writeTable stores the resolved redirects as little-endian (src, dst)
// address pairs at the start of the redirect table section of imgFile.
func writeTable(redirects []*redirect, imgFile string) error {
	img, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	section := img.Section(tableSection)
	img.Close()

	if section == nil {
		return fmt.Errorf("%s: missing %s section", imgFile, tableSection)
	}

	if need := uint64(len(redirects) * 16); need > section.Size {
		return fmt.Errorf("%s: %s section holds %d bytes; %d redirects need %d", imgFile, tableSection, section.Size, len(redirects), need)
	}

	table := make([]byte, 0, len(redirects)*16)
	for _, r := range redirects {
		table = binary.LittleEndian.AppendUint64(table, r.srcVMA)
		table = binary.LittleEndian.AppendUint64(table, r.dstVMA)
	}

	f, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	if _, err = f.WriteAt(table, int64(section.Offset)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
