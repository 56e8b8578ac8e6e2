package service

import (
	"agrotic/internal/dto"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Fallos collects failures of best-effort steps. They are logged and reported
// to the caller but never abort the operation that produced them.
type Fallos struct {
	items []dto.FalloPaso
}

// Registrar records err under paso; a nil err is a no-op so call sites can
// pass results straight through.
func (f *Fallos) Registrar(paso string, ref uuid.UUID, err error) {
	if err == nil {
		return
	}
	auditar(paso, ref, err)
	f.items = append(f.items, dto.FalloPaso{
		Paso:         paso,
		ReferenciaID: ref.String(),
		Error:        err.Error(),
	})
}

func (f *Fallos) Items() []dto.FalloPaso {
	if f.items == nil {
		return []dto.FalloPaso{}
	}
	return f.items
}

func (f *Fallos) Vacio() bool { return len(f.items) == 0 }

// auditar logs a best-effort failure where no report goes back to the caller.
func auditar(paso string, ref uuid.UUID, err error) {
	if err == nil {
		return
	}
	log.Warn().Err(err).Str("paso", paso).Str("referencia", ref.String()).Msg("paso omitido")
}
