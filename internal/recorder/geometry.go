package recorder

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"screencap/internal/services"
)

// Geometry is the pixel size of an X display.
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) String() string {
	return strconv.Itoa(g.Width) + "x" + strconv.Itoa(g.Height)
}

// GeometryProber reports the size of a display at the moment of the call.
type GeometryProber interface {
	Probe(ctx context.Context, display string) (Geometry, error)
}

// XdpyinfoProber queries geometry through the xdpyinfo utility.
type XdpyinfoProber struct {
	Binary string
}

// Probe runs `xdpyinfo -display <display>` and parses its dimensions line.
func (p XdpyinfoProber) Probe(ctx context.Context, display string) (Geometry, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "xdpyinfo"
	}
	cmd := exec.CommandContext(ctx, binary, "-display", display) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Geometry{}, services.Wrap(services.ErrExternalTool, "record", "probe geometry", detail, err)
	}
	geometry, err := ParseDimensions(string(output))
	if err != nil {
		return Geometry{}, services.Wrap(services.ErrExternalTool, "record", "probe geometry", "", err)
	}
	return geometry, nil
}

// ParseDimensions extracts WxH from the "dimensions:" line of xdpyinfo output.
func ParseDimensions(output string) (Geometry, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		rest, ok := strings.CutPrefix(line, "dimensions:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			break
		}
		return parseGeometry(fields[0])
	}
	return Geometry{}, fmt.Errorf("no dimensions line in xdpyinfo output")
}

func parseGeometry(value string) (Geometry, error) {
	w, h, ok := strings.Cut(value, "x")
	if !ok {
		return Geometry{}, fmt.Errorf("malformed geometry %q", value)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return Geometry{}, fmt.Errorf("malformed geometry %q", value)
	}
	return Geometry{Width: width, Height: height}, nil
}

// StaticGeometry returns a fixed size without touching the display.
type StaticGeometry Geometry

func (g StaticGeometry) Probe(context.Context, string) (Geometry, error) {
	return Geometry(g), nil
}
