package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config 顶层配置结构
type Config struct {
	Application *Application `mapstructure:"application"`
	Logger      *Logger      `mapstructure:"logger"`
	EventFlow   *EventFlow   `mapstructure:"eventFlow"`
}

var AppConfig = &Config{
	Application: ApplicationConfig,
	Logger:      LoggerConfig,
	EventFlow:   EventFlowConfig,
}

func Setup(configYml string) error {

	v := viper.New()
	v.SetConfigFile(configYml)
	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("读取配置文件失败: %v", err))
	}

	// 映射到AppConfig
	if err := v.Unmarshal(AppConfig); err != nil {
		panic(fmt.Sprintf("解析配置文件失败: %v", err))
	}

	return nil
}
