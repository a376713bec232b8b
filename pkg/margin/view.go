package margin

// Read-only accessors over committed state, for monitoring surfaces and tests.
// They never see the journal of an in-flight transaction.

func (e *Engine) view() *State { return NewState(e.db) }

// GetGlobalSettings loads the settings singleton.
func (e *Engine) GetGlobalSettings() (*GlobalSettings, error) {
	var gs GlobalSettings
	if err := e.view().getRecord(GlobalSettingsAddress(), &gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

// GetDebtController loads the debt controller singleton.
func (e *Engine) GetDebtController() (*DebtController, error) {
	var dc DebtController
	if err := e.view().getRecord(DebtControllerAddress(), &dc); err != nil {
		return nil, err
	}
	return &dc, nil
}

// GetLpVault loads a vault record.
func (e *Engine) GetLpVault(addr Address) (*LpVault, error) {
	var v LpVault
	if err := e.view().getRecord(addr, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetPool loads a pool record.
func (e *Engine) GetPool(addr Address) (*Pool, error) {
	var p Pool
	if err := e.view().getRecord(addr, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPosition loads a position record.
func (e *Engine) GetPosition(addr Address) (*Position, error) {
	var p Position
	if err := e.view().getRecord(addr, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetNativeYield loads a native-yield record.
func (e *Engine) GetNativeYield(addr Address) (*NativeYield, error) {
	var ny NativeYield
	if err := e.view().getRecord(addr, &ny); err != nil {
		return nil, err
	}
	return &ny, nil
}

// GetStrategy loads a strategy record.
func (e *Engine) GetStrategy(addr Address) (*Strategy, error) {
	var st Strategy
	if err := e.view().getRecord(addr, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// HasRecord reports whether any record exists at addr.
func (e *Engine) HasRecord(addr Address) (bool, error) {
	return e.view().hasRecord(addr)
}

// Balance returns a token account's committed balance.
func (e *Engine) Balance(account Address) (uint64, error) {
	return NewLedger(e.view()).Balance(account)
}

// Supply returns a mint's committed supply.
func (e *Engine) Supply(mint Address) (uint64, error) {
	return NewLedger(e.view()).Supply(mint)
}
