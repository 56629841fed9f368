package gameserver

// PanickingCommand panics when applied.
type PanickingCommand struct{}

// Name implements Command.
func (PanickingCommand) Name() string { return "panicking" }

func (PanickingCommand) apply(*Simulation) (string, error) { panic("boom") }
