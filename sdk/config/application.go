package config

// Application 应用程序配置
type Application struct {
	Mode string `mapstructure:"mode" json:"mode"`
	Host string `mapstructure:"host" json:"host"`
	Name string `mapstructure:"name" json:"name"`
	Port int    `mapstructure:"port" json:"port"`
}

var ApplicationConfig = new(Application)

// EventFlowConfig 全局事件流配置实例
var EventFlowConfig = new(EventFlow)
