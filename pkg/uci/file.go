package uci

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Section is one `config <type> ['<name>']` block of a UCI file
type Section struct {
	Type    string              `json:"type"`
	Name    string              `json:"name,omitempty"`
	Options map[string]string   `json:"options,omitempty"`
	Lists   map[string][]string `json:"lists,omitempty"`

	order []string
}

func newSection(typ, name string) *Section {
	return &Section{
		Type:    typ,
		Name:    name,
		Options: make(map[string]string),
		Lists:   make(map[string][]string),
	}
}

// Get returns an option value
func (s *Section) Get(option string) (string, bool) {
	v, ok := s.Options[option]
	return v, ok
}

// Set adds or replaces an option, keeping the original option order
func (s *Section) Set(option, value string) {
	if _, ok := s.Options[option]; !ok {
		s.order = append(s.order, option)
	}
	s.Options[option] = value
}

func (s *Section) addList(option, value string) {
	if _, ok := s.Lists[option]; !ok {
		s.order = append(s.order, option)
	}
	s.Lists[option] = append(s.Lists[option], value)
}

func (s *Section) clone() *Section {
	c := newSection(s.Type, s.Name)
	for k, v := range s.Options {
		c.Options[k] = v
	}
	for k, v := range s.Lists {
		c.Lists[k] = append([]string(nil), v...)
	}
	c.order = append([]string(nil), s.order...)
	return c
}

// Package is a parsed UCI configuration file such as /etc/config/wireless
type Package struct {
	Name     string
	Sections []*Section
}

// Parse reads a UCI file. Comments and blank lines are dropped.
func Parse(name string, r io.Reader) (*Package, error) {
	p := &Package{Name: name}
	var current *Section

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := splitFields(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNum, err)
		}

		switch fields[0] {
		case "package":
			continue
		case "config":
			if len(fields) < 2 || len(fields) > 3 {
				return nil, fmt.Errorf("%s:%d: invalid section definition: %s", name, lineNum, line)
			}
			sectionName := ""
			if len(fields) == 3 {
				sectionName = fields[2]
			}
			current = newSection(fields[1], sectionName)
			p.Sections = append(p.Sections, current)
		case "option", "list":
			if current == nil {
				return nil, fmt.Errorf("%s:%d: %s outside of a section", name, lineNum, fields[0])
			}
			if len(fields) != 3 {
				return nil, fmt.Errorf("%s:%d: invalid %s definition: %s", name, lineNum, fields[0], line)
			}
			if fields[0] == "option" {
				current.Set(fields[1], fields[2])
			} else {
				current.addList(fields[1], fields[2])
			}
		default:
			return nil, fmt.Errorf("%s:%d: unknown keyword %q", name, lineNum, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	return p, nil
}

// splitFields tokenizes a UCI line, honouring single and double quotes
func splitFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	var quote rune
	inField := false

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inField = true
		case r == ' ' || r == '\t':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteRune(r)
			inField = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

// Section finds a section by name, or by `@type[index]` for anonymous sections
func (p *Package) Section(name string) *Section {
	if strings.HasPrefix(name, "@") {
		typ, idx, ok := parseAnonymousRef(name)
		if !ok {
			return nil
		}
		matches := p.SectionsOfType(typ)
		if idx < 0 {
			idx += len(matches)
		}
		if idx < 0 || idx >= len(matches) {
			return nil
		}
		return matches[idx]
	}

	for _, s := range p.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func parseAnonymousRef(ref string) (string, int, bool) {
	open := strings.Index(ref, "[")
	if open < 0 || !strings.HasSuffix(ref, "]") {
		return "", 0, false
	}
	idx, err := strconv.Atoi(ref[open+1 : len(ref)-1])
	if err != nil {
		return "", 0, false
	}
	return ref[1:open], idx, true
}

// SectionsOfType returns all sections of typ in file order
func (p *Package) SectionsOfType(typ string) []*Section {
	var out []*Section
	for _, s := range p.Sections {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

// AddSection appends a new named section
func (p *Package) AddSection(typ, name string) *Section {
	s := newSection(typ, name)
	p.Sections = append(p.Sections, s)
	return s
}

func (p *Package) clone() *Package {
	c := &Package{Name: p.Name, Sections: make([]*Section, len(p.Sections))}
	for i, s := range p.Sections {
		c.Sections[i] = s.clone()
	}
	return c
}

// WriteTo serializes the package in the format written by `uci commit`
func (p *Package) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for i, s := range p.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		if s.Name != "" {
			fmt.Fprintf(&b, "config %s '%s'\n", s.Type, s.Name)
		} else {
			fmt.Fprintf(&b, "config %s\n", s.Type)
		}
		for _, opt := range s.order {
			if v, ok := s.Options[opt]; ok {
				fmt.Fprintf(&b, "\toption %s '%s'\n", opt, v)
				continue
			}
			for _, v := range s.Lists[opt] {
				fmt.Fprintf(&b, "\tlist %s '%s'\n", opt, v)
			}
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
