package api

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/xiumouer/waimai-ops-intelligence/assignments"
)

// registerCustomValidators 注册自定义验证器
func registerCustomValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// 注册派单方案日期验证器
		v.RegisterValidation("dispatchDate", validDispatchDate)
	}
}

// validDispatchDate 验证日期为 YYYY-MM-DD 格式
var validDispatchDate validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := time.Parse(assignments.DateLayout, date)
	return err == nil
}
