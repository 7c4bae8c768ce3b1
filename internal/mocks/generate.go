package mocks

//go:generate mockery --name BatchStore --srcpkg github.com/aevon-lab/aevon-rum/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
