package providers

import (
	"errors"
	"fmt"

	"github.com/gookit/validate"

	"referrald/internal/structures"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

func (cv *CnfValidator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return v.Errors
	}

	l := cv.conf.Ledger
	if l.ReferralBonus > l.Decimals {
		return fmt.Errorf("ledger.referralBonus %d exceeds ledger.decimals %d", l.ReferralBonus, l.Decimals)
	}
	if l.Level1Rate+l.Level2Rate > l.Decimals {
		return fmt.Errorf("ledger level rates %d+%d exceed ledger.decimals %d", l.Level1Rate, l.Level2Rate, l.Decimals)
	}
	if l.CycleCheckDepth < 0 || l.CycleCheckDepth == 1 {
		return errors.New("ledger.cycleCheckDepth must be 0 (full walk) or at least 2")
	}
	if l.MaxChainDepth < 2 {
		return fmt.Errorf("ledger.maxChainDepth %d must be at least 2", l.MaxChainDepth)
	}
	if err := cv.validateStorage(); err != nil {
		return err
	}
	if cv.conf.Events.Redis.Enabled && cv.conf.Events.Redis.Addr == "" {
		return errors.New("events.redis.addr is required when redis sink is enabled")
	}
	if cv.conf.Events.Centrifugo.Enabled && cv.conf.Events.Centrifugo.Addr == "" {
		return errors.New("events.centrifugo.addr is required when centrifugo sink is enabled")
	}
	return nil
}

func (cv *CnfValidator) validateStorage() error {
	st, p := cv.conf.Storage, cv.conf.Persistence
	if st.Driver != "memory" {
		if st.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %s", st.Driver)
		}
		return nil
	}
	// snapshots are the memory driver's only durability
	if p.FilePath == "" || !validate.IsUnixPath(p.FilePath) {
		return fmt.Errorf("persistence.filePath %q is required for driver memory", p.FilePath)
	}
	if p.SaveInterval <= 0 {
		return errors.New("persistence.saveInterval must be positive for driver memory")
	}
	return nil
}
