package alerts

import (
	"context"
	"fmt"

	"binwatch/internal/models"
)

// Paused reads the simulator pause flag; a missing setting means running
func (e *Engine) Paused(ctx context.Context) (bool, error) {
	value, found, err := e.settings.GetSetting(ctx, models.SettingSimulatorPaused)
	if err != nil {
		return false, err
	}
	return found && value == "true", nil
}

// SetPaused stores the pause flag and audits the change
func (e *Engine) SetPaused(ctx context.Context, paused bool) error {
	if err := e.settings.SetSetting(ctx, models.SettingSimulatorPaused, models.FormatBool(paused)); err != nil {
		return err
	}
	e.audit(ctx, models.ActionSimulatorPaused, fmt.Sprintf("paused=%t", paused), e.now())
	return nil
}
