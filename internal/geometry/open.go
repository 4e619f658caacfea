package geometry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Open replaces the model with one parsed from an unrolled geo file. The
// incoming model is validated before it is accepted; on any failure the
// geometry is left cleared.
func (g *Geometry) Open(path string) error {
	if g.closed {
		return fmt.Errorf("geometry %q: %w", g.Tag(), ErrClosed)
	}
	g.Clear()
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != ".geo_unrolled" {
		return fmt.Errorf("can't open the file %q: unsupported extension %q", base, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't open the file %q: %w", base, err)
	}
	if err := g.parseGeo(string(data)); err != nil {
		g.Clear()
		return fmt.Errorf("can't open the file %q: %w", base, err)
	}
	if g.Dimension() < 0 {
		g.Clear()
		return fmt.Errorf("can't open the file %q: empty model", base)
	}
	if err := g.Synchronize(); err != nil {
		g.Clear()
		return fmt.Errorf("can't open the file %q: %w", base, err)
	}
	return nil
}

func (g *Geometry) parseGeo(src string) error {
	sc := bufio.NewScanner(strings.NewReader(src))
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasSuffix(line, ";") {
			return fmt.Errorf("line %d: missing terminating semicolon", ln)
		}
		stmt := strings.TrimSpace(strings.TrimSuffix(line, ";"))
		if err := g.parseStatement(stmt); err != nil {
			return fmt.Errorf("line %d: %w", ln, err)
		}
	}
	return sc.Err()
}

func (g *Geometry) parseStatement(stmt string) error {
	if rest, ok := strings.CutPrefix(stmt, "Periodic "); ok {
		return g.parsePeriodic(rest)
	}
	eq := strings.Index(stmt, "=")
	if eq < 0 {
		return fmt.Errorf("unsupported statement %q", stmt)
	}
	lhs := strings.TrimSpace(stmt[:eq])
	rhs := strings.TrimSpace(stmt[eq+1:])
	open := strings.Index(lhs, "(")
	if open < 0 || !strings.HasSuffix(lhs, ")") {
		return fmt.Errorf("malformed entity header %q", lhs)
	}
	keyword := strings.TrimSpace(lhs[:open])
	args := strings.TrimSpace(lhs[open+1 : len(lhs)-1])
	body, err := braceList(rhs)
	if err != nil {
		return err
	}
	switch keyword {
	case "Point":
		return g.parsePoint(args, body)
	case "Line":
		return g.parseLine(args, body)
	case "Curve Loop", "Line Loop":
		return g.parseLoop(args, body)
	case "Plane Surface":
		return g.parseSurface(args, body)
	case "Physical Point":
		return g.parsePhysical(0, args, body)
	case "Physical Curve", "Physical Line":
		return g.parsePhysical(1, args, body)
	case "Physical Surface":
		return g.parsePhysical(2, args, body)
	default:
		return fmt.Errorf("unsupported statement keyword %q", keyword)
	}
}

func (g *Geometry) parsePoint(args, body string) error {
	tag, err := strconv.Atoi(args)
	if err != nil {
		return fmt.Errorf("point tag %q: %w", args, err)
	}
	vals, err := parseFloatList(body)
	if err != nil {
		return fmt.Errorf("point %d: %w", tag, err)
	}
	if len(vals) != 3 && len(vals) != 4 {
		return fmt.Errorf("point %d: want 3 coordinates with optional size, got %d values", tag, len(vals))
	}
	lc := 0.0
	if len(vals) == 4 {
		lc = vals[3]
	}
	if _, dup := g.points[tag]; dup || tag < 1 {
		return fmt.Errorf("invalid or duplicate point tag %d", tag)
	}
	g.points[tag] = Point{Tag: tag, X: vals[0], Y: vals[1], Z: vals[2], Lc: lc}
	if tag >= g.nextPoint {
		g.nextPoint = tag + 1
	}
	return nil
}

func (g *Geometry) parseLine(args, body string) error {
	tag, err := strconv.Atoi(args)
	if err != nil {
		return fmt.Errorf("line tag %q: %w", args, err)
	}
	pts, err := parseIntList(body)
	if err != nil {
		return fmt.Errorf("line %d: %w", tag, err)
	}
	if len(pts) != 2 {
		return fmt.Errorf("line %d: want 2 endpoints, got %d", tag, len(pts))
	}
	if _, dup := g.curves[tag]; dup || tag < 1 {
		return fmt.Errorf("invalid or duplicate line tag %d", tag)
	}
	g.curves[tag] = Curve{Tag: tag, Start: pts[0], End: pts[1]}
	if tag >= g.nextCurve {
		g.nextCurve = tag + 1
	}
	return nil
}

func (g *Geometry) parseLoop(args, body string) error {
	tag, err := strconv.Atoi(args)
	if err != nil {
		return fmt.Errorf("curve loop tag %q: %w", args, err)
	}
	curves, err := parseIntList(body)
	if err != nil {
		return fmt.Errorf("curve loop %d: %w", tag, err)
	}
	if _, dup := g.loops[tag]; dup || tag < 1 {
		return fmt.Errorf("invalid or duplicate curve loop tag %d", tag)
	}
	g.loops[tag] = CurveLoop{Tag: tag, Curves: curves}
	if tag >= g.nextLoop {
		g.nextLoop = tag + 1
	}
	return nil
}

func (g *Geometry) parseSurface(args, body string) error {
	tag, err := strconv.Atoi(args)
	if err != nil {
		return fmt.Errorf("surface tag %q: %w", args, err)
	}
	loops, err := parseIntList(body)
	if err != nil {
		return fmt.Errorf("surface %d: %w", tag, err)
	}
	if _, dup := g.surfaces[tag]; dup || tag < 1 {
		return fmt.Errorf("invalid or duplicate surface tag %d", tag)
	}
	g.surfaces[tag] = PlaneSurface{Tag: tag, Loops: loops}
	if tag >= g.nextSurface {
		g.nextSurface = tag + 1
	}
	return nil
}

func (g *Geometry) parsePhysical(dim int, args, body string) error {
	name := ""
	tagPart := args
	if strings.HasPrefix(args, `"`) {
		end := strings.LastIndex(args, `"`)
		if end == 0 {
			return fmt.Errorf("unterminated group name in %q", args)
		}
		unquoted, err := strconv.Unquote(args[:end+1])
		if err != nil {
			return fmt.Errorf("group name in %q: %w", args, err)
		}
		name = unquoted
		tagPart = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args[end+1:]), ","))
	}
	tag, err := strconv.Atoi(tagPart)
	if err != nil {
		return fmt.Errorf("physical group tag %q: %w", tagPart, err)
	}
	entities, err := parseIntList(body)
	if err != nil {
		return fmt.Errorf("physical group %d: %w", tag, err)
	}
	byTag, ok := g.groups[dim]
	if !ok {
		byTag = map[int]*PhysicalGroup{}
		g.groups[dim] = byTag
	}
	if _, dup := byTag[tag]; dup || tag < 1 {
		return fmt.Errorf("invalid or duplicate physical group tag %d", tag)
	}
	byTag[tag] = &PhysicalGroup{Dim: dim, Tag: tag, Name: name, Entities: entities}
	if tag >= g.nextGroup[dim] {
		g.nextGroup[dim] = tag + 1
	}
	return nil
}

func (g *Geometry) parsePeriodic(rest string) error {
	brace := strings.Index(rest, "{")
	if brace < 0 {
		return fmt.Errorf("malformed periodic statement %q", rest)
	}
	dim, err := dimForKeyword(strings.TrimSpace(rest[:brace]))
	if err != nil {
		return err
	}
	targetsRaw, rest, err := takeBraceGroup(rest[brace:])
	if err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "=") {
		return fmt.Errorf("periodic statement missing source entities")
	}
	sourcesRaw, rest, err := takeBraceGroup(strings.TrimSpace(rest[1:]))
	if err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "Affine") {
		return fmt.Errorf("periodic statement missing affine transform")
	}
	transformRaw, rest, err := takeBraceGroup(strings.TrimSpace(strings.TrimPrefix(rest, "Affine")))
	if err != nil {
		return err
	}
	if strings.TrimSpace(rest) != "" {
		return fmt.Errorf("trailing input %q after periodic statement", strings.TrimSpace(rest))
	}
	targets, err := parseIntList(targetsRaw)
	if err != nil {
		return err
	}
	sources, err := parseIntList(sourcesRaw)
	if err != nil {
		return err
	}
	transform, err := parseFloatList(transformRaw)
	if err != nil {
		return err
	}
	return g.SetPeriodic(dim, targets, sources, transform)
}

func dimForKeyword(kw string) (int, error) {
	switch kw {
	case "Point":
		return 0, nil
	case "Curve", "Line":
		return 1, nil
	case "Surface":
		return 2, nil
	default:
		return -1, fmt.Errorf("unsupported entity keyword %q", kw)
	}
}

// takeBraceGroup returns the contents of the leading {...} group and the
// remainder of the string after it.
func takeBraceGroup(s string) (inner, rest string, err error) {
	if !strings.HasPrefix(s, "{") {
		return "", "", fmt.Errorf("expected brace group in %q", s)
	}
	end := strings.Index(s, "}")
	if end < 0 {
		return "", "", fmt.Errorf("unterminated brace group in %q", s)
	}
	return strings.TrimSpace(s[1:end]), s[end+1:], nil
}

func braceList(s string) (string, error) {
	inner, rest, err := takeBraceGroup(s)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rest) != "" {
		return "", fmt.Errorf("trailing input %q after brace group", strings.TrimSpace(rest))
	}
	return inner, nil
}

func parseIntList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("integer list entry %q: %w", strings.TrimSpace(part), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloatList(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("float list entry %q: %w", strings.TrimSpace(part), err)
		}
		out = append(out, v)
	}
	return out, nil
}
