package ocpp

import "context"

// Engine is the complete inbound frame surface for one station connection:
// CALLs go through the processor, replies feed the command correlator.
type Engine struct {
	processor *Processor
	commands  *CommandManager
}

// NewEngine builds engine.
func NewEngine(processor *Processor, commands *CommandManager) *Engine {
	return &Engine{processor: processor, commands: commands}
}

// HandleCall answers a station-initiated CALL.
func (e *Engine) HandleCall(ctx context.Context, stationCode string, frame *Frame) []byte {
	return e.processor.HandleCall(ctx, stationCode, frame)
}

// HandleCallResult resolves a pending server-initiated request.
func (e *Engine) HandleCallResult(stationCode, messageID string, payload map[string]any) {
	e.commands.HandleCallResult(stationCode, messageID, payload)
}

// HandleCallError fails a pending server-initiated request.
func (e *Engine) HandleCallError(stationCode, messageID, errorCode, description string, details map[string]any) {
	e.commands.HandleCallError(stationCode, messageID, errorCode, description, details)
}
