package dto

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/roneel47/UniTask-Pro/internal/model"
)

// 自定义校验标签
const (
	usnTag        = "usn"
	semesterTag   = "semester"
	taskStatusTag = "task_status"
)

var registerOnce sync.Once

// RegisterValidators 在 gin 的默认校验引擎上注册自定义标签，重复调用无副作用
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		// 错误信息中使用 JSON / form 字段名
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		_ = v.RegisterValidation(usnTag, usnValidation)
		_ = v.RegisterValidation(semesterTag, semesterValidation)
		_ = v.RegisterValidation(taskStatusTag, taskStatusValidation)
	})
}

func usnValidation(fl validator.FieldLevel) bool {
	return model.IsValidUSN(fl.Field().String())
}

func semesterValidation(fl validator.FieldLevel) bool {
	return model.IsValidSemester(fl.Field().String())
}

func taskStatusValidation(fl validator.FieldLevel) bool {
	return model.IsValidTaskStatus(fl.Field().String())
}

// ValidationDetails 将绑定错误整理为 "field: tag" 列表，用于响应 details 字段
func ValidationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
