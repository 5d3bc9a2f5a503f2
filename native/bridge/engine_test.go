package bridge

import (
	"errors"
	"math/big"
	"testing"

	coreerr "taobridge/core/errors"
	"taobridge/core/events"
	"taobridge/core/types"
	"taobridge/native/registry"
	"taobridge/native/staking"
)

const (
	localChainID   = 31337
	counterChainID = 945
)

var (
	admin     = types.BytesToAddress([]byte{0xA1})
	authority = types.BytesToAddress([]byte{0xA2})
	user      = types.BytesToAddress([]byte{0x01})
	recipient = types.BytesToAddress([]byte{0x02})
)

type captureEmitter struct {
	emitted []events.Event
}

func (c *captureEmitter) Emit(e events.Event) { c.emitted = append(c.emitted, e) }

func (c *captureEmitter) count(eventType string) int {
	n := 0
	for _, e := range c.emitted {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

func ether(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

func newTestEngine(t *testing.T) (*Engine, *captureEmitter) {
	t.Helper()
	engine := NewEngine(Config{LocalChainID: localChainID, Admin: admin, Authority: authority}, nil)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	return engine, emitter
}

func whitelistNative(t *testing.T, e *Engine, symbol, name string, decimals uint8) types.TokenKey {
	t.Helper()
	key := types.NewTokenKey(symbol)
	if err := e.WhitelistToken(admin, key, true, types.ZeroAddress, symbol, name, decimals); err != nil {
		t.Fatalf("whitelist %s: %v", symbol, err)
	}
	return key
}

func deployHosted(t *testing.T, e *Engine, symbol, name string, holder types.Address, supply *big.Int) (types.TokenKey, *registry.Book) {
	t.Helper()
	key := types.NewTokenKey(symbol)
	local := registry.WrappedTokenAddress(types.NewTokenKey(symbol + "/hosted"))
	book := e.Registry().RegisterHostedToken(local, types.TokenMetadata{Name: name, Symbol: symbol, Decimals: 18})
	book.Mint(holder, supply)
	if err := e.WhitelistToken(admin, key, true, local, symbol, name, 18); err != nil {
		t.Fatalf("whitelist %s: %v", symbol, err)
	}
	return key, book
}

func taoItem(nonce uint64, to types.Address, amount *big.Int) TransferItem {
	return TransferItem{
		TokenKey:      types.NewTokenKey("TAO"),
		To:            to,
		Amount:        amount,
		Nonce:         nonce,
		SourceChainID: counterChainID,
		Metadata:      types.TokenMetadata{Name: "Tao", Symbol: "TAO", Decimals: 9},
	}
}

func TestWhitelistRequiresAdmin(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := types.NewTokenKey("ETH")
	err := engine.WhitelistToken(user, key, true, types.ZeroAddress, "ETH", "Ether", 18)
	if !errors.Is(err, coreerr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, ok := engine.Registry().AssetInfo(key); ok {
		t.Fatalf("unauthorized whitelist must not mutate the registry")
	}
}

func TestWhitelistEmitsEvent(t *testing.T) {
	engine, emitter := newTestEngine(t)
	whitelistNative(t, engine, "ETH", "Ether", 18)
	if emitter.count(events.TypeTokenWhitelisted) != 1 {
		t.Fatalf("expected one whitelist event")
	}
}

func TestPauseBlocksOutboundOnly(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := whitelistNative(t, engine, "ETH", "Ether", 18)
	engine.Accounts().CreditNative(user, ether(100))

	if err := engine.Pause(user); !errors.Is(err, coreerr.ErrUnauthorized) {
		t.Fatalf("non-pauser pause: %v", err)
	}
	if err := engine.Pause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err := engine.RequestTransfer(user, key, recipient, ether(100), counterChainID, ether(100))
	if !errors.Is(err, coreerr.ErrBridgePaused) {
		t.Fatalf("expected ErrBridgePaused, got %v", err)
	}

	// inbound execution is not gated by the pause flag
	if err := engine.ExecuteTransferRequests(authority, []TransferItem{taoItem(0, recipient, ether(100))}); err != nil {
		t.Fatalf("inbound while paused: %v", err)
	}

	if err := engine.Unpause(admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := engine.RequestTransfer(user, key, recipient, ether(100), counterChainID, ether(100)); err != nil {
		t.Fatalf("outbound after unpause: %v", err)
	}
}

func TestRequestTransferValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := whitelistNative(t, engine, "ETH", "Ether", 18)
	engine.Accounts().CreditNative(user, ether(1000))

	cases := []struct {
		name   string
		key    types.TokenKey
		to     types.Address
		amount *big.Int
		dest   uint64
		value  *big.Int
		want   error
	}{
		{"destination is local chain", key, recipient, ether(100), localChainID, ether(100), coreerr.ErrInvalidDestinationChain},
		{"token not whitelisted", types.NewTokenKey("DOGE"), recipient, ether(100), counterChainID, ether(100), coreerr.ErrTokenNotWhitelisted},
		{"zero recipient", key, types.ZeroAddress, ether(100), counterChainID, ether(100), coreerr.ErrInvalidRecipient},
		{"zero amount", key, recipient, big.NewInt(0), counterChainID, big.NewInt(0), coreerr.ErrInvalidAmount},
		{"value under amount", key, recipient, ether(100), counterChainID, ether(99), coreerr.ErrInvalidAmount},
		{"value over amount", key, recipient, ether(100), counterChainID, ether(101), coreerr.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.RequestTransfer(user, tc.key, tc.to, tc.amount, tc.dest, tc.value)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
	if engine.BridgeNonce() != 0 {
		t.Fatalf("rejected requests must not consume nonces")
	}
}

func TestRequestTransferDisabledToken(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := types.NewTokenKey("ETH")
	if err := engine.WhitelistToken(admin, key, false, types.ZeroAddress, "ETH", "Ether", 18); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	_, err := engine.RequestTransfer(user, key, recipient, ether(1), counterChainID, ether(1))
	if !errors.Is(err, coreerr.ErrTokenNotWhitelisted) {
		t.Fatalf("disabled token must be rejected, got %v", err)
	}
}

func TestNativeOutboundLockSemantics(t *testing.T) {
	engine, emitter := newTestEngine(t)
	key := whitelistNative(t, engine, "ETH", "Ether", 18)
	engine.Accounts().CreditNative(user, ether(100))

	nonce, err := engine.RequestTransfer(user, key, recipient, ether(100), counterChainID, ether(100))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("first nonce = %d, want 0", nonce)
	}
	if engine.Accounts().BalanceOf(user).Sign() != 0 {
		t.Fatalf("user balance must decrease by amount")
	}
	if engine.Accounts().BalanceOf(engine.Vault()).Cmp(ether(100)) != 0 {
		t.Fatalf("vault balance = %s, want 100e18", engine.Accounts().BalanceOf(engine.Vault()))
	}
	if emitter.count(events.TypeTransferRequested) != 1 {
		t.Fatalf("expected one request event")
	}
}

func TestNativeOutboundInsufficientBalance(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := whitelistNative(t, engine, "ETH", "Ether", 18)
	engine.Accounts().CreditNative(user, ether(50))

	_, err := engine.RequestTransfer(user, key, recipient, ether(100), counterChainID, ether(100))
	if !errors.Is(err, coreerr.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if engine.Accounts().BalanceOf(user).Cmp(ether(50)) != 0 {
		t.Fatalf("failed request must not move funds")
	}
}

func TestHostedOutboundLockSemantics(t *testing.T) {
	engine, _ := newTestEngine(t)
	key, book := deployHosted(t, engine, "MATIC", "Matic", user, ether(100))

	_, err := engine.RequestTransfer(user, key, recipient, ether(100), counterChainID, nil)
	if !errors.Is(err, coreerr.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	// the failed request rolled the registry back, refresh the book handle
	info, _ := engine.Registry().AssetInfo(key)
	book, _ = engine.Registry().Book(info.Address)
	book.Approve(user, engine.Vault(), ether(100))
	if _, err := engine.RequestTransfer(user, key, recipient, ether(100), counterChainID, nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if book.BalanceOf(user).Sign() != 0 {
		t.Fatalf("user token balance must decrease")
	}
	if book.BalanceOf(engine.Vault()).Cmp(ether(100)) != 0 {
		t.Fatalf("vault token balance = %s, want 100e18", book.BalanceOf(engine.Vault()))
	}
}

func TestHostedOutboundInsufficientBalance(t *testing.T) {
	engine, _ := newTestEngine(t)
	key, book := deployHosted(t, engine, "MATIC", "Matic", user, ether(100))
	book.Approve(user, engine.Vault(), ether(200))

	_, err := engine.RequestTransfer(user, key, recipient, ether(200), counterChainID, nil)
	if !errors.Is(err, coreerr.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestManagedOutboundBurnSemantics(t *testing.T) {
	engine, _ := newTestEngine(t)

	// wrap TAO inbound first, then bridge it back out
	if err := engine.ExecuteTransferRequests(authority, []TransferItem{taoItem(0, user, ether(100))}); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	key := types.NewTokenKey("TAO")
	info, _ := engine.Registry().AssetInfo(key)
	book, _ := engine.Registry().Book(info.Address)

	if err := engine.WhitelistToken(admin, key, true, info.Address, "TAO", "Tao", 9); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if book.BalanceOf(user).Sign() != 0 {
		t.Fatalf("burn must remove the user's balance")
	}
	if book.BalanceOf(engine.Vault()).Sign() != 0 {
		t.Fatalf("burn must not credit the vault")
	}
	if book.TotalSupply().Sign() != 0 {
		t.Fatalf("burn must shrink supply, got %s", book.TotalSupply())
	}
}

func TestNonceStrictlyIncreasesAcrossKeys(t *testing.T) {
	engine, _ := newTestEngine(t)
	ethKey := whitelistNative(t, engine, "ETH", "Ether", 18)
	maticKey, book := deployHosted(t, engine, "MATIC", "Matic", user, ether(500))
	book.Approve(user, engine.Vault(), ether(500))
	engine.Accounts().CreditNative(user, ether(500))

	var last uint64
	for i := 0; i < 6; i++ {
		var nonce uint64
		var err error
		if i%2 == 0 {
			nonce, err = engine.RequestTransfer(user, ethKey, recipient, ether(10), counterChainID, ether(10))
		} else {
			nonce, err = engine.RequestTransfer(user, maticKey, recipient, ether(10), counterChainID, nil)
		}
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if nonce != uint64(i) {
			t.Fatalf("nonce = %d, want %d", nonce, i)
		}
		last = nonce
	}
	if engine.BridgeNonce() != last+1 {
		t.Fatalf("next nonce = %d, want %d", engine.BridgeNonce(), last+1)
	}
}

func TestExecuteRequiresAuthority(t *testing.T) {
	engine, _ := newTestEngine(t)
	err := engine.ExecuteTransferRequests(user, []TransferItem{taoItem(0, user, ether(100))})
	if !errors.Is(err, coreerr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestExecuteBatchBounds(t *testing.T) {
	engine, _ := newTestEngine(t)

	if err := engine.ExecuteTransferRequests(authority, nil); !errors.Is(err, coreerr.ErrInvalidInput) {
		t.Fatalf("empty batch: %v", err)
	}

	oversized := make([]TransferItem, DefaultMaxBatch+1)
	for i := range oversized {
		oversized[i] = taoItem(uint64(i), user, ether(1))
	}
	if err := engine.ExecuteTransferRequests(authority, oversized); !errors.Is(err, coreerr.ErrInvalidInput) {
		t.Fatalf("oversized batch: %v", err)
	}
}

func TestExecuteWrapsUnknownTokenOnce(t *testing.T) {
	engine, emitter := newTestEngine(t)

	if err := engine.ExecuteTransferRequests(authority, []TransferItem{taoItem(0, user, ether(100))}); err != nil {
		t.Fatalf("first inbound: %v", err)
	}
	if err := engine.ExecuteTransferRequests(authority, []TransferItem{taoItem(1, user, ether(50))}); err != nil {
		t.Fatalf("second inbound: %v", err)
	}

	if emitter.count(events.TypeTokenWrapped) != 1 {
		t.Fatalf("wrap event must be emitted exactly once, got %d", emitter.count(events.TypeTokenWrapped))
	}
	if emitter.count(events.TypeTransferExecuted) != 2 {
		t.Fatalf("expected two execution events")
	}

	key := types.NewTokenKey("TAO")
	info, ok := engine.Registry().AssetInfo(key)
	if !ok || !info.Managed || !info.Supported || info.Address.IsZero() {
		t.Fatalf("wrapped token misclassified: %+v", info)
	}
	book, _ := engine.Registry().Book(info.Address)
	if book.BalanceOf(user).Cmp(ether(150)) != 0 {
		t.Fatalf("minted balance = %s, want 150e18", book.BalanceOf(user))
	}
	if book.BalanceOf(engine.Vault()).Sign() != 0 {
		t.Fatalf("mint must leave the vault untouched")
	}
}

func TestExecuteRejectsReplay(t *testing.T) {
	engine, _ := newTestEngine(t)
	batch := []TransferItem{taoItem(0, user, ether(100))}

	if err := engine.ExecuteTransferRequests(authority, batch); err != nil {
		t.Fatalf("first execution: %v", err)
	}
	err := engine.ExecuteTransferRequests(authority, batch)
	if !errors.Is(err, coreerr.ErrTransferAlreadyProcessed) {
		t.Fatalf("expected ErrTransferAlreadyProcessed, got %v", err)
	}

	key := types.NewTokenKey("TAO")
	info, _ := engine.Registry().AssetInfo(key)
	book, _ := engine.Registry().Book(info.Address)
	if book.BalanceOf(user).Cmp(ether(100)) != 0 {
		t.Fatalf("replay must not double mint: %s", book.BalanceOf(user))
	}
}

func TestExecuteBatchIsAtomic(t *testing.T) {
	engine, emitter := newTestEngine(t)

	// second item replays the first within the same batch
	batch := []TransferItem{
		taoItem(0, user, ether(100)),
		taoItem(0, user, ether(100)),
	}
	err := engine.ExecuteTransferRequests(authority, batch)
	if !errors.Is(err, coreerr.ErrTransferAlreadyProcessed) {
		t.Fatalf("expected ErrTransferAlreadyProcessed, got %v", err)
	}

	// the first item must have been rolled back wholesale
	if _, ok := engine.Registry().AssetInfo(types.NewTokenKey("TAO")); ok {
		t.Fatalf("failed batch must roll back the wrap")
	}
	if engine.Replay().Size() != 0 {
		t.Fatalf("failed batch must not mark anything processed")
	}
	if len(emitter.emitted) != 0 {
		t.Fatalf("failed batch must emit nothing, got %d events", len(emitter.emitted))
	}
}

func TestHostedUnlockSemantics(t *testing.T) {
	engine, emitter := newTestEngine(t)
	key, book := deployHosted(t, engine, "MATIC", "Matic", user, ether(100))
	book.Approve(user, engine.Vault(), ether(100))
	if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, nil); err != nil {
		t.Fatalf("outbound: %v", err)
	}

	item := TransferItem{
		TokenKey:      key,
		To:            user,
		Amount:        ether(100),
		Nonce:         0,
		SourceChainID: counterChainID,
		Metadata:      types.TokenMetadata{Name: "Polygon", Symbol: "MATIC", Decimals: 18},
	}
	if err := engine.ExecuteTransferRequests(authority, []TransferItem{item}); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if emitter.count(events.TypeTokenWrapped) != 0 {
		t.Fatalf("hosted token must not be wrapped")
	}
	if book.BalanceOf(user).Cmp(ether(100)) != 0 {
		t.Fatalf("unlock must return the full amount: %s", book.BalanceOf(user))
	}
	if book.BalanceOf(engine.Vault()).Sign() != 0 {
		t.Fatalf("vault must be drained: %s", book.BalanceOf(engine.Vault()))
	}
}

func TestNativeUnlockSemantics(t *testing.T) {
	engine, _ := newTestEngine(t)
	key := whitelistNative(t, engine, "ETH", "Ether", 18)
	engine.Accounts().CreditNative(user, ether(100))
	if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, ether(100)); err != nil {
		t.Fatalf("outbound: %v", err)
	}

	item := TransferItem{
		TokenKey:      key,
		To:            user,
		Amount:        ether(100),
		Nonce:         0,
		SourceChainID: counterChainID,
		Metadata:      types.TokenMetadata{Name: "Ether", Symbol: "ETH", Decimals: 18},
	}
	if err := engine.ExecuteTransferRequests(authority, []TransferItem{item}); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if engine.Accounts().BalanceOf(user).Cmp(ether(100)) != 0 {
		t.Fatalf("user native balance = %s, want 100e18", engine.Accounts().BalanceOf(user))
	}
	if engine.Accounts().BalanceOf(engine.Vault()).Sign() != 0 {
		t.Fatalf("vault native balance must return to zero")
	}
}

func TestHostedConservation(t *testing.T) {
	engine, _ := newTestEngine(t)
	key, book := deployHosted(t, engine, "MATIC", "Matic", user, ether(100))
	book.Approve(user, engine.Vault(), ether(100))

	total := func() *big.Int {
		sum := book.BalanceOf(user)
		sum.Add(sum, book.BalanceOf(recipient))
		sum.Add(sum, book.BalanceOf(engine.Vault()))
		return sum
	}
	before := total()

	if _, err := engine.RequestTransfer(user, key, user, ether(40), counterChainID, nil); err != nil {
		t.Fatalf("outbound: %v", err)
	}
	item := TransferItem{TokenKey: key, To: recipient, Amount: ether(40), Nonce: 0, SourceChainID: counterChainID,
		Metadata: types.TokenMetadata{Name: "Matic", Symbol: "MATIC", Decimals: 18}}
	if err := engine.ExecuteTransferRequests(authority, []TransferItem{item}); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if total().Cmp(before) != 0 {
		t.Fatalf("token supply not conserved: %s != %s", total(), before)
	}
}

func newStakingEngine(t *testing.T, e *Engine, interval uint64, height *uint64) (*staking.Engine, *staking.MemoryFacility) {
	t.Helper()
	facility := staking.NewMemoryFacility()
	engine := staking.NewEngine(staking.Config{Owner: admin, StakeInterval: interval, RewardRate: big.NewInt(1000)}, facility, e.Accounts())
	engine.SetHeightSource(func() uint64 { return *height })
	if err := e.SetStakingPolicy(admin, engine); err != nil {
		t.Fatalf("set staking policy: %v", err)
	}
	return engine, facility
}

func TestOutboundNativeRoutesToStaking(t *testing.T) {
	engine, emitter := newTestEngine(t)
	height := uint64(10)
	stakingEngine, facility := newStakingEngine(t, engine, 100, &height)

	key := whitelistNative(t, engine, "TAO", "Tao", 9)
	engine.Accounts().CreditNative(user, ether(1000))

	for i := 0; i < 10; i++ {
		if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, ether(100)); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	if engine.Accounts().BalanceOf(engine.Vault()).Sign() != 0 {
		t.Fatalf("staked value must bypass the vault")
	}
	pos, ok := stakingEngine.PositionOf(user)
	if !ok || pos.Amount.Cmp(ether(1000)) != 0 {
		t.Fatalf("stake position = %+v, want 1000e18", pos)
	}
	if stakingEngine.PooledBalance().Cmp(ether(1000)) != 0 {
		t.Fatalf("pool = %s, want 1000e18", stakingEngine.PooledBalance())
	}
	if facility.BalanceOf().Sign() != 0 {
		t.Fatalf("no flush expected within interval")
	}
	if emitter.count(events.TypeTokensStaked) != 10 {
		t.Fatalf("expected ten staked events, got %d", emitter.count(events.TypeTokensStaked))
	}
}

func TestInboundNativeUnstakes(t *testing.T) {
	engine, emitter := newTestEngine(t)
	height := uint64(10)
	stakingEngine, _ := newStakingEngine(t, engine, 10_000, &height)

	key := whitelistNative(t, engine, "TAO", "Tao", 9)
	engine.Accounts().CreditNative(user, ether(100))
	if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, ether(100)); err != nil {
		t.Fatalf("outbound: %v", err)
	}

	height = 20
	item := TransferItem{TokenKey: key, To: user, Amount: ether(10), Nonce: 0, SourceChainID: counterChainID,
		Metadata: types.TokenMetadata{Name: "Tao", Symbol: "TAO", Decimals: 9}}
	if err := engine.ExecuteTransferRequests(authority, []TransferItem{item}); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if engine.Accounts().BalanceOf(user).Cmp(ether(10)) != 0 {
		t.Fatalf("user credited %s, want 10e18", engine.Accounts().BalanceOf(user))
	}
	if stakingEngine.PooledBalance().Cmp(ether(90)) != 0 {
		t.Fatalf("pool = %s, want 90e18", stakingEngine.PooledBalance())
	}
	if emitter.count(events.TypeTokensUnstaked) != 1 {
		t.Fatalf("expected one unstaked event")
	}
}

func TestInboundBatchFailureLeavesFacilityIntact(t *testing.T) {
	engine, emitter := newTestEngine(t)
	height := uint64(10)
	stakingEngine, facility := newStakingEngine(t, engine, 100, &height)

	key := whitelistNative(t, engine, "TAO", "Tao", 9)
	engine.Accounts().CreditNative(user, ether(100))
	if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, ether(100)); err != nil {
		t.Fatalf("outbound: %v", err)
	}
	height = 120
	if err := stakingEngine.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if facility.BalanceOf().Cmp(ether(100)) != 0 {
		t.Fatalf("facility = %s, want 100e18", facility.BalanceOf())
	}
	emitter.emitted = nil

	// the first item releases from the facility, the second recipient has no
	// position, so the whole batch must abort without an external withdrawal
	height = 130
	batch := []TransferItem{
		taoItem(0, user, ether(10)),
		taoItem(1, recipient, ether(10)),
	}
	err := engine.ExecuteTransferRequests(authority, batch)
	if !errors.Is(err, coreerr.ErrInsufficientStakedBalance) {
		t.Fatalf("expected ErrInsufficientStakedBalance, got %v", err)
	}

	if facility.BalanceOf().Cmp(ether(100)) != 0 {
		t.Fatalf("aborted batch must leave the facility untouched, got %s", facility.BalanceOf())
	}
	if engine.Accounts().BalanceOf(user).Sign() != 0 {
		t.Fatalf("aborted batch must not credit anyone")
	}
	pos, _ := stakingEngine.PositionOf(user)
	if pos.Amount.Cmp(ether(100)) != 0 {
		t.Fatalf("position = %s, want 100e18", pos.Amount)
	}
	if engine.Replay().Size() != 0 {
		t.Fatalf("aborted batch must not mark items processed")
	}
	if len(emitter.emitted) != 0 {
		t.Fatalf("aborted batch must emit nothing")
	}
}

// countingFacility records every withdrawal issued against it.
type countingFacility struct {
	*staking.MemoryFacility
	withdrawals []*big.Int
}

func (f *countingFacility) WithdrawStake(amount *big.Int) error {
	if err := f.MemoryFacility.WithdrawStake(amount); err != nil {
		return err
	}
	f.withdrawals = append(f.withdrawals, new(big.Int).Set(amount))
	return nil
}

func TestInboundBatchAggregatesFacilityWithdrawals(t *testing.T) {
	engine, _ := newTestEngine(t)
	height := uint64(10)
	facility := &countingFacility{MemoryFacility: staking.NewMemoryFacility()}
	stakingEngine := staking.NewEngine(staking.Config{Owner: admin, StakeInterval: 100, RewardRate: big.NewInt(1000)}, facility, engine.Accounts())
	stakingEngine.SetHeightSource(func() uint64 { return height })
	if err := engine.SetStakingPolicy(admin, stakingEngine); err != nil {
		t.Fatalf("set staking policy: %v", err)
	}

	key := whitelistNative(t, engine, "TAO", "Tao", 9)
	engine.Accounts().CreditNative(user, ether(100))
	if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, ether(100)); err != nil {
		t.Fatalf("outbound: %v", err)
	}
	height = 120
	if err := stakingEngine.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	height = 130
	batch := []TransferItem{
		taoItem(0, user, ether(10)),
		taoItem(1, user, ether(20)),
	}
	if err := engine.ExecuteTransferRequests(authority, batch); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if len(facility.withdrawals) != 1 {
		t.Fatalf("expected one aggregated withdrawal, got %d", len(facility.withdrawals))
	}
	// each item accrues 100e18 * 1000 * 11 / 1e18 on the undiminished balance
	perItemReward := big.NewInt(1_100_000)
	want := new(big.Int).Add(ether(30), new(big.Int).Mul(perItemReward, big.NewInt(2)))
	if facility.withdrawals[0].Cmp(want) != 0 {
		t.Fatalf("withdrawal = %s, want %s", facility.withdrawals[0], want)
	}
	if engine.Accounts().BalanceOf(user).Cmp(want) != 0 {
		t.Fatalf("user credited %s, want %s", engine.Accounts().BalanceOf(user), want)
	}
}

func TestInboundUnstakeFailureAbortsBatch(t *testing.T) {
	engine, emitter := newTestEngine(t)
	height := uint64(10)
	stakingEngine, _ := newStakingEngine(t, engine, 10_000, &height)

	key := whitelistNative(t, engine, "TAO", "Tao", 9)
	engine.Accounts().CreditNative(user, ether(100))
	if _, err := engine.RequestTransfer(user, key, user, ether(100), counterChainID, ether(100)); err != nil {
		t.Fatalf("outbound: %v", err)
	}
	emitter.emitted = nil

	// recipient has no stake position, so the second item must fail
	batch := []TransferItem{
		{TokenKey: key, To: user, Amount: ether(10), Nonce: 0, SourceChainID: counterChainID,
			Metadata: types.TokenMetadata{Name: "Tao", Symbol: "TAO", Decimals: 9}},
		{TokenKey: key, To: recipient, Amount: ether(10), Nonce: 1, SourceChainID: counterChainID,
			Metadata: types.TokenMetadata{Name: "Tao", Symbol: "TAO", Decimals: 9}},
	}
	err := engine.ExecuteTransferRequests(authority, batch)
	if !errors.Is(err, coreerr.ErrInsufficientStakedBalance) {
		t.Fatalf("expected ErrInsufficientStakedBalance, got %v", err)
	}

	if engine.Accounts().BalanceOf(user).Sign() != 0 {
		t.Fatalf("aborted batch must not credit anyone")
	}
	if stakingEngine.PooledBalance().Cmp(ether(100)) != 0 {
		t.Fatalf("pool = %s, want 100e18", stakingEngine.PooledBalance())
	}
	if engine.Replay().Size() != 0 {
		t.Fatalf("aborted batch must not mark items processed")
	}
	if len(emitter.emitted) != 0 {
		t.Fatalf("aborted batch must emit nothing")
	}
}
