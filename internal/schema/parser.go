package schema

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	entityRe       = regexp.MustCompile(`^entity\s+([\w-]+)\s*:(.*)$`)
	fieldRe        = regexp.MustCompile(`^\s*([\w_]+):\s*([^\s#]+)(.*)$`)
	choiceRe       = regexp.MustCompile(`^([\w-]+)\[(.*)\]$`)
	reColumnsStart = regexp.MustCompile(`^\s*columns\s*:\s*$`)
	reColumnLine   = regexp.MustCompile(`^\s*([\w_.]+)(.*)$`)
)

// rawEntity сущность как она записана в DSL, до разрешения справочников.
type rawEntity struct {
	Kind    string
	Opts    map[string]string
	Fields  []rawField
	Columns []rawColumn
	Source  string
}

type rawField struct {
	Name    string
	Type    string
	Choices []string
	Catalog string
	Opts    map[string]string
}

type rawColumn struct {
	Key  string
	Opts map[string]string
}

// splitOptionTokens делит "k=v k2='v 2' pattern=^[A-Z0-9 _-]+$" на токены,
// не рвёт по пробелам внутри кавычек/скобок
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// parseOptions превращает хвост строки в карту опций. Флаг без значения → "true".
func parseOptions(tail string) map[string]string {
	opts := map[string]string{}
	raw := strings.TrimSpace(tail)
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	} else if strings.HasPrefix(raw, "#") {
		return opts
	}
	for _, tok := range splitOptionTokens(raw) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if !strings.Contains(tok, "=") {
			opts[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		if k != "" {
			opts[k] = unquote(strings.TrimSpace(kv[1]))
		}
	}
	return opts
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// splitChoices "a, 'b c', d" → [a, b c, d]
func splitChoices(inside string) []string {
	var out []string
	var buf []rune
	var quote rune
	flush := func() {
		s := strings.TrimSpace(string(buf))
		if s != "" {
			out = append(out, unquote(s))
		}
		buf = buf[:0]
	}
	for _, r := range inside {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			buf = append(buf, r)
		case r == '"' || r == '\'':
			quote = r
			buf = append(buf, r)
		case r == ',':
			flush()
		default:
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// parseDSL читает описание сущностей:
//
//	entity startups: singular="Startup" plural="Startups" featured=featured date=founded
//	  name: text required label="Name" column sortable
//	  stage: select[Idea, Seed, "Series A"] default=Seed
//	  industry: select[@industries]
//	  columns:
//	    id label="#" sortable
func parseDSL(r io.Reader, source string) ([]*rawEntity, error) {
	var entities []*rawEntity
	var current *rawEntity
	inColumns := false
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := entityRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				entities = append(entities, current)
			}
			current = &rawEntity{
				Kind:   strings.ToLower(m[1]),
				Opts:   parseOptions(m[2]),
				Source: fmt.Sprintf("%s:%d", source, lineNo),
			}
			inColumns = false
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("%s:%d: field outside of entity", source, lineNo)
		}

		if reColumnsStart.MatchString(line) {
			inColumns = true
			continue
		}
		if inColumns {
			if m := reColumnLine.FindStringSubmatch(line); m != nil && !strings.HasPrefix(strings.TrimSpace(m[2]), ":") {
				current.Columns = append(current.Columns, rawColumn{Key: m[1], Opts: parseOptions(m[2])})
				continue
			}
			inColumns = false
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%s:%d: cannot parse %q", source, lineNo, line)
		}
		name, rawType, tail := m[1], m[2], m[3]

		// склейка оборванных типов со скобками: select[Idea, Seed]
		if strings.Contains(rawType, "[") && !strings.Contains(rawType, "]") {
			if idx := strings.Index(tail, "]"); idx >= 0 {
				rawType += tail[:idx+1]
				tail = tail[idx+1:]
			}
		}

		f := rawField{Name: name, Type: rawType, Opts: parseOptions(tail)}
		if mm := choiceRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = mm[1]
			inside := strings.TrimSpace(mm[2])
			if strings.HasPrefix(inside, "@") {
				f.Catalog = strings.TrimPrefix(inside, "@")
			} else {
				f.Choices = splitChoices(inside)
			}
		}
		// email/url как тип: это text с проверкой
		if t := strings.ToLower(f.Type); t == "email" || t == "url" {
			f.Opts[t] = "true"
		}
		current.Fields = append(current.Fields, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		entities = append(entities, current)
	}
	return entities, nil
}
