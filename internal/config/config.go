package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lotterylab/lotteryd/internal/core/application"
	"github.com/lotterylab/lotteryd/internal/core/ports"
	"github.com/lotterylab/lotteryd/internal/infrastructure/db"
	inmemorylivestore "github.com/lotterylab/lotteryd/internal/infrastructure/live-store/inmemory"
	httporacle "github.com/lotterylab/lotteryd/internal/infrastructure/oracle/http"
	staticoracle "github.com/lotterylab/lotteryd/internal/infrastructure/oracle/static"
	localrng "github.com/lotterylab/lotteryd/internal/infrastructure/rng/local"
	timescheduler "github.com/lotterylab/lotteryd/internal/infrastructure/scheduler/gocron"
	inmemorywallet "github.com/lotterylab/lotteryd/internal/infrastructure/wallet/inmemory"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedOracles = supportedType{
		"http":   {},
		"static": {},
	}
	supportedRngs = supportedType{
		"local": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
	supportedWallets = supportedType{
		"inmemory": {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType string
	DbDir  string

	RoundInterval time.Duration
	PollInterval  time.Duration
	TicketPrice   string
	AssetDecimals uint8

	OracleType       string
	OracleURL        string
	OracleStaleAfter time.Duration
	OraclePrice      string
	OracleDecimals   uint8

	RngType         string
	RngFulfillDelay time.Duration

	WalletType   string
	FaucetAmount uint64

	SchedulerType string

	ticketPrice decimal.Decimal

	repo      ports.RepoManager
	svc       application.Service
	oracle    ports.PriceOracle
	rng       ports.RandomnessSource
	wallet    ports.WalletService
	scheduler ports.SchedulerService
	liveStore ports.LiveStore
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir          = "DATADIR"
	Port             = "PORT"
	LogLevel         = "LOG_LEVEL"
	DbType           = "DB_TYPE"
	RoundInterval    = "ROUND_INTERVAL"
	PollInterval     = "POLL_INTERVAL"
	TicketPrice      = "TICKET_PRICE_USD"
	AssetDecimals    = "ASSET_DECIMALS"
	OracleType       = "ORACLE_TYPE"
	OracleURL        = "ORACLE_URL"
	OracleStaleAfter = "ORACLE_STALE_AFTER"
	OraclePrice      = "ORACLE_PRICE"
	OracleDecimals   = "ORACLE_DECIMALS"
	RngType          = "RNG_TYPE"
	RngFulfillDelay  = "RNG_FULFILL_DELAY"
	WalletType       = "WALLET_TYPE"
	FaucetAmount     = "FAUCET_AMOUNT"
	SchedulerType    = "SCHEDULER_TYPE"

	defaultDatadir          = appDataDir("lotteryd")
	DefaultPort             = 7070
	defaultLogLevel         = 4
	defaultDbType           = "badger"
	defaultRoundInterval    = 30 * time.Second
	defaultPollInterval     = 5 * time.Second
	defaultTicketPrice      = "50"
	defaultAssetDecimals    = 18
	defaultOracleType       = "static"
	defaultOracleStaleAfter = time.Hour
	defaultOraclePrice      = "123000000000" // $1230, 8 decimals
	defaultOracleDecimals   = 8
	defaultRngType          = "local"
	defaultRngFulfillDelay  = 2 * time.Second
	defaultWalletType       = "inmemory"
	defaultFaucetAmount     = uint64(5_000_000_000_000_000_000) // 5 units, 18 decimals
	defaultSchedulerType    = "gocron"
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("LOTTERY")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(RoundInterval, defaultRoundInterval)
	viper.SetDefault(PollInterval, defaultPollInterval)
	viper.SetDefault(TicketPrice, defaultTicketPrice)
	viper.SetDefault(AssetDecimals, defaultAssetDecimals)
	viper.SetDefault(OracleType, defaultOracleType)
	viper.SetDefault(OracleStaleAfter, defaultOracleStaleAfter)
	viper.SetDefault(OraclePrice, defaultOraclePrice)
	viper.SetDefault(OracleDecimals, defaultOracleDecimals)
	viper.SetDefault(RngType, defaultRngType)
	viper.SetDefault(RngFulfillDelay, defaultRngFulfillDelay)
	viper.SetDefault(WalletType, defaultWalletType)
	viper.SetDefault(FaucetAmount, defaultFaucetAmount)
	viper.SetDefault(SchedulerType, defaultSchedulerType)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:          viper.GetString(Datadir),
		Port:             viper.GetUint32(Port),
		LogLevel:         viper.GetInt(LogLevel),
		DbType:           viper.GetString(DbType),
		DbDir:            filepath.Join(viper.GetString(Datadir), "db"),
		RoundInterval:    viper.GetDuration(RoundInterval),
		PollInterval:     viper.GetDuration(PollInterval),
		TicketPrice:      viper.GetString(TicketPrice),
		AssetDecimals:    uint8(viper.GetUint32(AssetDecimals)),
		OracleType:       viper.GetString(OracleType),
		OracleURL:        viper.GetString(OracleURL),
		OracleStaleAfter: viper.GetDuration(OracleStaleAfter),
		OraclePrice:      viper.GetString(OraclePrice),
		OracleDecimals:   uint8(viper.GetUint32(OracleDecimals)),
		RngType:          viper.GetString(RngType),
		RngFulfillDelay:  viper.GetDuration(RngFulfillDelay),
		WalletType:       viper.GetString(WalletType),
		FaucetAmount:     viper.GetUint64(FaucetAmount),
		SchedulerType:    viper.GetString(SchedulerType),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedOracles.supports(c.OracleType) {
		return fmt.Errorf("oracle type not supported, please select one of: %s", supportedOracles)
	}
	if !supportedRngs.supports(c.RngType) {
		return fmt.Errorf("rng type not supported, please select one of: %s", supportedRngs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if !supportedWallets.supports(c.WalletType) {
		return fmt.Errorf("wallet type not supported, please select one of: %s", supportedWallets)
	}
	if c.RoundInterval < 2*time.Second {
		return fmt.Errorf("invalid round interval, must be at least 2 seconds")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval")
	}

	ticketPrice, err := decimal.NewFromString(c.TicketPrice)
	if err != nil {
		return fmt.Errorf("invalid ticket price %q: %s", c.TicketPrice, err)
	}
	if ticketPrice.IsNegative() {
		return fmt.Errorf("invalid ticket price, must not be negative")
	}
	c.ticketPrice = ticketPrice

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.oracleService(); err != nil {
		return err
	}
	if err := c.rngService(); err != nil {
		return err
	}
	if err := c.walletService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	c.liveStoreService()
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}

	switch c.DbType {
	case "badger":
		logger := log.New()
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) oracleService() error {
	var svc ports.PriceOracle
	var err error
	switch c.OracleType {
	case "http":
		svc, err = httporacle.NewService(c.OracleURL)
	case "static":
		svc, err = staticoracle.NewService(c.OraclePrice, c.OracleDecimals)
	default:
		err = fmt.Errorf("unknown oracle type")
	}
	if err != nil {
		return err
	}

	c.oracle = svc
	return nil
}

func (c *Config) rngService() error {
	var svc ports.RandomnessSource
	var err error
	switch c.RngType {
	case "local":
		svc = localrng.NewService(c.RngFulfillDelay)
	default:
		err = fmt.Errorf("unknown rng type")
	}
	if err != nil {
		return err
	}

	c.rng = svc
	return nil
}

func (c *Config) walletService() error {
	var svc ports.WalletService
	var err error
	switch c.WalletType {
	case "inmemory":
		svc = inmemorywallet.NewService()
	default:
		err = fmt.Errorf("unknown wallet type")
	}
	if err != nil {
		return err
	}

	c.wallet = svc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) liveStoreService() {
	c.liveStore = inmemorylivestore.NewLiveStore()
}

func (c *Config) appService() error {
	svc, err := application.NewService(
		c.AssetDecimals, c.ticketPrice,
		c.RoundInterval, c.OracleStaleAfter, c.PollInterval,
		c.FaucetAmount,
		c.oracle, c.rng, c.wallet, c.repo, c.scheduler, c.liveStore,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
