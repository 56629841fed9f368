package mobility_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/mobility"
)

func TestMover_MoveToCompletes(t *testing.T) {
	reg := entity.NewRegistry()
	b := reg.Spawn(&entity.Body{Kind: entity.KindDefender, HP: 10, MaxHP: 10, Speed: 1})
	m := mobility.NewMover()

	m.RequestMoveTo(b.ID, geom.V(3, 0, 0))
	assert.False(t, m.IsIdle(b.ID))
	m.Step(reg)
	assert.InDelta(t, 1.0, b.Pos.X, 1e-9)
	m.Step(reg)
	assert.True(t, m.IsIdle(b.ID))
}

func TestMover_FollowsEntityAndKeepsDistance(t *testing.T) {
	reg := entity.NewRegistry()
	b := reg.Spawn(&entity.Body{Kind: entity.KindDefender, HP: 10, MaxHP: 10, Speed: 5})
	target := reg.Spawn(&entity.Body{Kind: entity.KindHostile, Pos: geom.V(10, 0, 0), HP: 10, MaxHP: 10})
	m := mobility.NewMover()

	m.RequestMoveToEntity(b.ID, target.ID, 0)
	for i := 0; i < 5; i++ {
		m.Step(reg)
	}
	assert.InDelta(t, 9.0, b.Pos.X, 1e-9)
	assert.False(t, m.IsIdle(b.ID))
}

func TestMover_DropsOrderWhenTargetGone(t *testing.T) {
	reg := entity.NewRegistry()
	b := reg.Spawn(&entity.Body{Kind: entity.KindDefender, HP: 10, MaxHP: 10, Speed: 1})
	target := reg.Spawn(&entity.Body{Kind: entity.KindHostile, Pos: geom.V(10, 0, 0), HP: 10, MaxHP: 10})
	m := mobility.NewMover()

	m.RequestMoveToEntity(b.ID, target.ID, 1)
	reg.Remove(target.ID)
	m.Step(reg)
	assert.True(t, m.IsIdle(b.ID))
	assert.Equal(t, geom.Vec3{}, b.Pos)
}
