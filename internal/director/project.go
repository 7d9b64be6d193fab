package director

import (
	"errors"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/motion2video/internal/animation"
)

const Version = "1.0"

var ErrInvalidProject = errors.New("director: invalid project")

// Project is the on-disk form of a canvas and its animation tracks.
type Project struct {
	Version  string    `yaml:"version"`
	Canvas   Canvas    `yaml:"canvas"`
	Duration float64   `yaml:"duration"` // seconds
	Elements []Element `yaml:"elements"`
	Tracks   []Track   `yaml:"tracks,omitempty"`
}

// Canvas is the logical drawing area in canvas units.
type Canvas struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Element is one drawable item. Zero size and a missing opacity take the
// editor defaults.
type Element struct {
	ID         string          `yaml:"id"`
	Type       string          `yaml:"type"`
	Position   animation.Point `yaml:"position"`
	Size       animation.Size  `yaml:"size"`
	Rotation   float64         `yaml:"rotation,omitempty"`
	Opacity    *float64        `yaml:"opacity,omitempty"`
	Color      string          `yaml:"color,omitempty"` // "#rrggbb[aa][@space]"
	Text       string          `yaml:"text,omitempty"`
	Alignment  string          `yaml:"alignment,omitempty"`
	FontSize   float64         `yaml:"font_size,omitempty"`
	Asset      string          `yaml:"asset,omitempty"`
	VideoStart float64         `yaml:"video_start,omitempty"`
}

// Track holds the keyframes of one "<elementID>_<property>" track. Type is
// the value-kind tag every keyframe value is decoded as.
type Track struct {
	ID        string     `yaml:"id"`
	Type      string     `yaml:"type"`
	Keyframes []Keyframe `yaml:"keyframes"`
}

// Keyframe keeps its value as a raw node until the track type is known.
type Keyframe struct {
	Time   float64   `yaml:"time"`
	Value  yaml.Node `yaml:"value"`
	Easing string    `yaml:"easing,omitempty"`
}
