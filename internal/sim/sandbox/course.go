package sandbox

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// Course is a world layout as stored in course.yaml.
type Course struct {
	Boxes  []CourseBox   `yaml:"boxes"`
	Agents []CourseAgent `yaml:"agents"`
}

type CourseBox struct {
	ID       string     `yaml:"id"`
	Min      [3]float64 `yaml:"min"`
	Max      [3]float64 `yaml:"max"`
	Walkable bool       `yaml:"walkable"`
}

type CourseAgent struct {
	ID    string     `yaml:"id"`
	Pos   [3]float64 `yaml:"pos"`
	Speed float64    `yaml:"speed"`
}

// DefaultCourse is a flat floor with a wall across the x axis and a pillar.
func DefaultCourse() Course {
	return Course{
		Boxes: []CourseBox{
			{ID: "floor", Min: [3]float64{-50, -50, -1}, Max: [3]float64{50, 50, 0}, Walkable: true},
			{ID: "wall-1", Min: [3]float64{5, -2, 0}, Max: [3]float64{5.5, 2, 3}},
			{ID: "pillar-1", Min: [3]float64{12, 4, 0}, Max: [3]float64{13, 5, 3}},
		},
	}
}

func LoadCourse(path string) (Course, error) {
	var c Course
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("course.yaml: %w", err)
	}
	return c, nil
}

// Apply adds the course's boxes and agents to w.
func (c Course) Apply(w *World) error {
	for _, b := range c.Boxes {
		if err := w.AddBox(Box{ID: b.ID, Min: mgl64.Vec3(b.Min), Max: mgl64.Vec3(b.Max), Walkable: b.Walkable}); err != nil {
			return err
		}
	}
	for _, a := range c.Agents {
		if err := w.AddAgent(a.ID, mgl64.Vec3(a.Pos), a.Speed); err != nil {
			return err
		}
	}
	return nil
}
