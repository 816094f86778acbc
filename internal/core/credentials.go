package core

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/ozon"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// CredentialsPrefix 凭据环境变量前缀: OZON_CLIENT_ID / OZON_API_KEY
const CredentialsPrefix = "OZON"

// LoadCredentials 从环境变量读取卖家凭据
// envFile存在时先加载, 已设置的环境变量不会被覆盖
func LoadCredentials(envFile string) (ozon.Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return ozon.Credentials{}, fmt.Errorf("加载环境文件失败 [%s]: %w", envFile, err)
			}
			utils.Debugf("环境文件不存在, 跳过: %s", envFile)
		}
	}

	var creds ozon.Credentials
	if err := envconfig.Process(CredentialsPrefix, &creds); err != nil {
		return ozon.Credentials{}, fmt.Errorf("%w: %v", ozon.ErrMissingCredentials, err)
	}
	return creds, nil
}
