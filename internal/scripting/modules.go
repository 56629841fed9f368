package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/events"
)

// registerModules defines the engine global: engine.log.<level>(msg) and
// engine.dice.roll(expr).
func (h *Hooks) registerModules(L *lua.LState) {
	engine := L.NewTable()

	logTable := L.NewTable()
	for name, write := range map[string]func(string, ...zap.Field){
		"debug": h.logger.Debug,
		"info":  h.logger.Info,
		"warn":  h.logger.Warn,
		"error": h.logger.Error,
	} {
		write := write
		L.SetField(logTable, name, L.NewFunction(func(L *lua.LState) int {
			write("lua", zap.String("msg", L.CheckString(1)))
			return 0
		}))
	}
	L.SetField(engine, "log", logTable)

	diceTable := L.NewTable()
	L.SetField(diceTable, "roll", L.NewFunction(h.luaRoll))
	L.SetField(engine, "dice", diceTable)

	L.SetGlobal("engine", engine)
}

// luaRoll returns {total, dice, modifier} for a "NdS+M" expression.
func (h *Hooks) luaRoll(L *lua.LState) int {
	expr, err := dice.Parse(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	total := h.roller.Damage(expr)
	t := L.NewTable()
	L.SetField(t, "total", lua.LNumber(total))
	L.SetField(t, "dice", lua.LNumber(total-expr.Modifier))
	L.SetField(t, "modifier", lua.LNumber(expr.Modifier))
	L.Push(t)
	return 1
}

// eventTable converts e to the table passed to hooks.
func eventTable(L *lua.LState, e events.Event) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(e.ID.String()))
	L.SetField(t, "type", lua.LString(e.Type))
	L.SetField(t, "tick", lua.LNumber(e.Tick))
	L.SetField(t, "wave", lua.LNumber(e.Wave))
	L.SetField(t, "entity", lua.LNumber(e.Entity))
	L.SetField(t, "unit", lua.LString(e.Unit))
	L.SetField(t, "structure", lua.LString(e.Structure))
	L.SetField(t, "amount", lua.LNumber(e.Amount))
	L.SetField(t, "detail", lua.LString(e.Detail))
	pos := L.NewTable()
	L.SetField(pos, "x", lua.LNumber(e.Position.X))
	L.SetField(pos, "y", lua.LNumber(e.Position.Y))
	L.SetField(pos, "z", lua.LNumber(e.Position.Z))
	L.SetField(t, "position", pos)
	return t
}
