package config

const (
	EnvPrefix = "MARKETLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "MARKETLEDGER_APP_ENV"
	EnvPort     = "MARKETLEDGER_APP_PORT"
	EnvRedisURL = "MARKETLEDGER_REDIS_URL"

	EnvDBDSN  = "MARKETLEDGER_DB_DSN"
	EnvDBHost = "MARKETLEDGER_DB_HOST"
	EnvDBUser = "MARKETLEDGER_DB_USER"
	EnvDBName = "MARKETLEDGER_DB_NAME"

	EnvOrdersAllocateOn     = "MARKETLEDGER_ORDERS_ALLOCATE_ON"
	EnvOrdersLotStrategy    = "MARKETLEDGER_ORDERS_LOT_STRATEGY"
	EnvOrdersCurrency       = "MARKETLEDGER_ORDERS_CURRENCY"
	EnvSettlementHoldPeriod = "MARKETLEDGER_SETTLEMENT_HOLD_PERIOD"
	EnvSettlementCommission = "MARKETLEDGER_SETTLEMENT_COMMISSION_RATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
