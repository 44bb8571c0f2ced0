package sink

import "context"

// Callback delivers to in-process functions. Nil functions are skipped.
type Callback struct {
	OnInstruction func(Instruction)
	OnRejection   func(Rejection)
}

func (c *Callback) Send(_ context.Context, ins Instruction) error {
	if c.OnInstruction != nil {
		c.OnInstruction(ins)
	}
	return nil
}

func (c *Callback) SendRejection(_ context.Context, rej Rejection) error {
	if c.OnRejection != nil {
		c.OnRejection(rej)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
