package svc

import "errors"

// ErrNoCatalog 错误：没有配置任何报价代码
var ErrNoCatalog = errors.New("no symbols configured")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
